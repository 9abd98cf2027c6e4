package logger

import (
	"fmt"
	"log/slog"
	"os"
)

func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func FatalWithLogger(base *slog.Logger, msg string, args ...any) {
	base.Error(msg, args...)
	os.Exit(1)
}

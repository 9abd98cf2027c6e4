package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/nexbridge/sidecar/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting for the handful
// of message shapes that recur across the dispatcher, health checker and
// circuit breaker: endpoint names, counts, and healthy/unhealthy status.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewStyledLogger(base *slog.Logger, t *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: base, theme: t}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Endpoint}.Sprint(endpoint))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Endpoint}.Sprint(endpoint))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Endpoint}.Sprint(endpoint))
	sl.logger.Error(styledMsg, args...)
}

// InfoHealthStatus logs an endpoint's current health as seen by the active
// prober, coloured healthy/unhealthy.
func (sl *StyledLogger) InfoHealthStatus(msg string, endpoint string, healthy bool, args ...any) {
	statusColor := sl.theme.HealthUnhealthy
	statusText := "unhealthy"
	if healthy {
		statusColor = sl.theme.HealthHealthy
		statusText = "healthy"
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg, pterm.Style{sl.theme.Endpoint}.Sprint(endpoint), pterm.Style{statusColor}.Sprint(statusText))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithHealthStats(msg string, healthy, unhealthy int, args ...any) {
	healthyStyled := pterm.Style{sl.theme.HealthHealthy}.Sprint(healthy)
	unhealthyStyled := pterm.Style{sl.theme.HealthUnhealthy}.Sprint(unhealthy)

	allArgs := make([]any, 0, len(args)+4)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, "healthy", healthyStyled, "unhealthy", unhealthyStyled)

	sl.logger.Info(msg, allArgs...)
}

// GetUnderlying returns the wrapped slog.Logger for callers that need to
// pass a plain *slog.Logger into a third-party library.
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

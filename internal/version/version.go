package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/nexbridge/sidecar/theme"
)

var (
	Name        = "sidecar"
	Authors     = "Nexbridge"
	Description = "Adaptive AI reverse-proxy sidecar"
	Version     = "v0.1.0"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/nexbridge/sidecar"
	GithubHomeUri   = "https://github.com/nexbridge/sidecar"
	GithubLatestUri = "https://github.com/nexbridge/sidecar/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padLatest := fmt.Sprintf("%*s", 1-len(Version), "")
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔────────────────────────────────────────────────────────╗
│   ███████╗██╗██████╗ ███████╗ ██████╗ █████╗ ██████╗   │
│   ██╔════╝██║██╔══██╗██╔════╝██╔════╝██╔══██╗██╔══██╗  │
│   ███████╗██║██║  ██║█████╗  ██║     ███████║██████╔╝  │
│   ╚════██║██║██║  ██║██╔══╝  ██║     ██╔══██║██╔══██╗  │
│   ███████║██║██████╔╝███████╗╚██████╗██║  ██║██║  ██║  │
│   ╚══════╝╚═╝╚═════╝ ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝  │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padLatest)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourSplash(" │\n"))
	b.WriteString(theme.ColourSplash("╚────────────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}

package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/kestrelworks/aviary/theme"
)

var (
	Name        = "aviary"
	Authors     = "Kestrel Works"
	Description = "Scraping gateway for a flock of borrowed accounts"
	Version     = "v0.1.0"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/kestrelworks/aviary"
	GithubHomeUri   = "https://github.com/kestrelworks/aviary"
	GithubLatestUri = "https://github.com/kestrelworks/aviary/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔──────────────────────────────────────────────────╗
│   █████╗ ██╗   ██╗██╗ █████╗ ██████╗ ██╗   ██╗   │
│  ██╔══██╗██║   ██║██║██╔══██╗██╔══██╗╚██╗ ██╔╝   │
│  ███████║██║   ██║██║███████║██████╔╝ ╚████╔╝    │
│  ██╔══██║╚██╗ ██╔╝██║██╔══██║██╔══██╗  ╚██╔╝     │
│  ██║  ██║ ╚████╔╝ ██║██║  ██║██║  ██║   ██║      │
│  ╚═╝  ╚═╝  ╚═══╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝      │` + "\n"))

	b.WriteString(theme.ColourSplash("│  "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(theme.ColourSplash("        │\n"))
	b.WriteString(theme.ColourSplash("╚──────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}

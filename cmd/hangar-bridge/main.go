package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Set via -ldflags at release time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color output for CLI tables.
// HANGAR_BRIDGE_COLOR: truecolor, 256, 16, none
func initColorProfile() {
	switch strings.ToLower(os.Getenv("HANGAR_BRIDGE_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		if os.Getenv("NO_COLOR") != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		// otherwise lipgloss detects the terminal itself
	}
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

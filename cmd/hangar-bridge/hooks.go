package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sjoeboo/hangar-bridge/internal/dispatch"
	"github.com/sjoeboo/hangar-bridge/internal/session"
)

var hooksPort int

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage the Claude Code hooks that feed the bridge",
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Add bridge HTTP hooks to Claude's settings.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		port := cfg.Hooks.Port
		if hooksPort > 0 {
			port = hooksPort
		}
		out := cmd.OutOrStdout()

		claude := dispatch.NewLocator(cfg.Claude.Path).Find()
		if ver, err := session.DetectClaudeVersion(claude); err != nil {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Could not detect Claude Code version (%v); HTTP hooks need 2.1.63 or later", err)))
		} else if !session.SupportsHTTPHooks(ver) {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Claude Code %s does not support HTTP hooks; upgrade to 2.1.63 or later", ver)))
		}

		changed, err := session.InstallClaudeHooks(cfg.Claude.ConfigDir, port)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintf(out, "Hooks already installed in %s (port %d)\n", cfg.Claude.ConfigDir, port)
			return nil
		}
		fmt.Fprintf(out, "%s hooks installed in %s (port %d)\n", okStyle.Render("✓"), cfg.Claude.ConfigDir, port)
		fmt.Fprintf(out, "%s\n", dimStyle.Render("Events: "+fmt.Sprint(session.HookEvents())))
		return nil
	},
}

var hooksUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove bridge hooks from Claude's settings.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		removed, err := session.RemoveClaudeHooks(cfg.Claude.ConfigDir)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No bridge hooks found in %s\n", cfg.Claude.ConfigDir)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s hooks removed from %s\n", okStyle.Render("✓"), cfg.Claude.ConfigDir)
		return nil
	},
}

var hooksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether bridge hooks are installed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if session.CheckClaudeHooksInstalled(cfg.Claude.ConfigDir) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s installed in %s\n", okStyle.Render("✓"), cfg.Claude.ConfigDir)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s not installed in %s\n", warnStyle.Render("✗"), cfg.Claude.ConfigDir)
		}
		return nil
	},
}

func init() {
	hooksInstallCmd.Flags().IntVar(&hooksPort, "port", 0, "Hook server port (default from config)")
	hooksCmd.AddCommand(hooksInstallCmd, hooksUninstallCmd, hooksStatusCmd)
}

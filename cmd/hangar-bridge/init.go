package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sjoeboo/hangar-bridge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Config already exists at %s\n", path)
			return nil
		}
		if err := config.CreateExample(path); err != nil {
			return fmt.Errorf("write example config: %w", err)
		}
		fmt.Fprintf(out, "%s wrote %s\n", okStyle.Render("✓"), path)
		fmt.Fprintln(out, dimStyle.Render("Set telegram.token and telegram.chat_id, then run: hangar-bridge hooks install && hangar-bridge run"))
		return nil
	},
}

func configFilePath() (string, error) {
	if configPath != "" {
		return config.ExpandTilde(configPath), nil
	}
	return config.DefaultPath()
}

// ensureExampleConfig writes the example config when none exists yet, so a
// failed first run leaves the user a file to fill in.
func ensureExampleConfig(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := config.CreateExample(path); err != nil {
		return false, err
	}
	return true, nil
}

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagekeeper/internal/config"
	"github.com/vango-dev/pagekeeper/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default configuration file",
		Long: `Write pagekeeper.json, .toml or .yaml with the default settings.

Examples:
  pagekeeper init
  pagekeeper init --format yaml deploy`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := writeDefaultConfig(dir, format, force)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "File format (json, toml or yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

// writeDefaultConfig writes the default configuration into dir.
func writeDefaultConfig(dir, format string, force bool) (string, error) {
	var name string
	switch format {
	case "json":
		name = config.ConfigFileName
	case "toml", "yaml":
		name = "pagekeeper." + format
	default:
		return "", errors.New("X131").
			WithDetail("unknown format " + format).
			WithSuggestion("Use json, toml or yaml")
	}

	if config.Exists(dir) && !force {
		return "", errors.New("X131").
			WithDetail("a configuration already exists in " + dir).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := config.New().SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}

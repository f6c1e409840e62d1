package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		dir    string
		format string
		sink   string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a reactor.yaml with default settings",
		Long: `Write a configuration file with default settings.

Examples:
  reactor init
  reactor init --sink=sqlite
  reactor init --format=json --dir=./service`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runInit(dir, format, sink, force)
			if err != nil {
				return err
			}
			success("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to write the config to")
	cmd.Flags().StringVar(&format, "format", "yaml", "File format: yaml or json")
	cmd.Flags().StringVar(&sink, "sink", "", "Persistence sink: memory, file, s3 or sqlite")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")

	return cmd
}

func runInit(dir, format, sink string, force bool) (string, error) {
	var name string
	switch format {
	case "yaml", "yml":
		name = config.DefaultConfigFileName
	case "json":
		name = "reactor.json"
	default:
		return "", errors.New("R090").
			WithDetail("unknown format " + format).
			WithSuggestion("Use yaml or json")
	}

	if config.Exists(dir) && !force {
		return "", errors.New("R091").
			WithDetail("A reactor config already exists in " + dir).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.New("R063").Wrap(err)
	}

	cfg := config.New()
	if sink != "" {
		cfg.Persist.Sink = sink
		if sink == config.SinkS3 {
			cfg.Persist.Bucket = "reactor-snapshots"
			cfg.Persist.Prefix = "todos"
		}
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := cfg.SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}

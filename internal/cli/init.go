package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/taskpad/internal/durability"
	"github.com/mesh-intelligence/taskpad/internal/paths"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize taskpad configuration and storage",
		Long:  "Create the configuration and data directories, write a default config.yaml\nwhen missing, and create an empty data file.",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flags)
		},
	}
}

func runInit(cmd *cobra.Command, flags *rootFlags) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	if err := ensureDir(configDir); err != nil {
		return sysErr(fmt.Errorf("create config directory: %w", err))
	}

	// Record an explicit --data-dir so later runs find the same data.
	dataDir := ""
	if flags.dataDir != "" {
		if dataDir, err = filepath.Abs(flags.dataDir); err != nil {
			return sysErr(fmt.Errorf("resolve data dir: %w", err))
		}
	}
	configPath := paths.ConfigFile(configDir)
	if err := writeConfigIfMissing(configPath, dataDir); err != nil {
		return sysErr(fmt.Errorf("write config: %w", err))
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := ensureDir(cfg.DataDir); err != nil {
		return sysErr(fmt.Errorf("create data directory: %w", err))
	}
	if _, err := os.Stat(cfg.Path()); errors.Is(err, fs.ErrNotExist) {
		logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		w := durability.NewWriter(cfg.Path(), nil, cfg.SaveRetries, cfg.RetryDelay, logger)
		if err := w.Write(context.Background(), nil); err != nil {
			return sysErr(fmt.Errorf("create data file: %w", err))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "taskpad initialized\nconfig: %s\ndata:   %s\n", configPath, cfg.Path())
	return nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. If it already exists, the function returns nil (idempotent).
func writeConfigIfMissing(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := newConfigFile(types.DefaultConfig(dataDir))
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

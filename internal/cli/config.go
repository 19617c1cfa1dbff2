// Config loading for the taskpad CLI.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/taskpad/internal/paths"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "TASKPAD"

	cfgKeyDataDir            = "data_dir"
	cfgKeyDataFile           = "data_file"
	cfgKeyBackupRetention    = "backup_retention"
	cfgKeyRecoveryCandidates = "recovery_candidates"
	cfgKeySaveDebounce       = "save_debounce"
	cfgKeySaveRetries        = "save_retries"
	cfgKeyRetryDelay         = "retry_delay"
	cfgKeyLogLevel           = "log_level"
	cfgKeyListen             = "listen"
)

// configFile is the structure written to config.yaml by init. Durations are
// kept as strings so the file reads "1s" rather than nanoseconds.
type configFile struct {
	DataDir            string `yaml:"data_dir,omitempty"`
	DataFile           string `yaml:"data_file"`
	BackupRetention    int    `yaml:"backup_retention"`
	RecoveryCandidates int    `yaml:"recovery_candidates"`
	SaveDebounce       string `yaml:"save_debounce"`
	SaveRetries        int    `yaml:"save_retries"`
	RetryDelay         string `yaml:"retry_delay"`
	LogLevel           string `yaml:"log_level"`
	Listen             string `yaml:"listen"`
}

func newConfigFile(cfg types.Config) configFile {
	return configFile{
		DataDir:            cfg.DataDir,
		DataFile:           cfg.DataFile,
		BackupRetention:    cfg.BackupRetention,
		RecoveryCandidates: cfg.RecoveryCandidates,
		SaveDebounce:       cfg.SaveDebounce.String(),
		SaveRetries:        cfg.SaveRetries,
		RetryDelay:         cfg.RetryDelay.String(),
		LogLevel:           cfg.LogLevel,
		Listen:             cfg.Listen,
	}
}

// loadConfig reads config.yaml from the resolved config directory, applies
// TASKPAD_* environment variables and defaults, and resolves the data
// directory. A missing config.yaml is not an error.
func loadConfig(flags *rootFlags) (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, sysErr(fmt.Errorf("resolve config dir: %w", err))
	}

	v := viper.New()
	defaults := types.DefaultConfig("")
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyDataFile, defaults.DataFile)
	v.SetDefault(cfgKeyBackupRetention, defaults.BackupRetention)
	v.SetDefault(cfgKeyRecoveryCandidates, defaults.RecoveryCandidates)
	v.SetDefault(cfgKeySaveDebounce, defaults.SaveDebounce)
	v.SetDefault(cfgKeySaveRetries, defaults.SaveRetries)
	v.SetDefault(cfgKeyRetryDelay, defaults.RetryDelay)
	v.SetDefault(cfgKeyLogLevel, defaults.LogLevel)
	v.SetDefault(cfgKeyListen, defaults.Listen)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir, err = paths.ResolveDataDir(flags.dataDir, cfg.DataDir)
	if err != nil {
		return types.Config{}, sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a logger writing to w at the named level.
func newLogger(level string, w io.Writer) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return logger, nil
}

// ensureDir creates dir if it is missing.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

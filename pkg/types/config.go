package types

import (
	"errors"
	"path/filepath"
	"time"
)

// Config holds the store and durability parameters. The CLI fills it from
// config.yaml, TASKPAD_* environment variables, and flags.
type Config struct {
	DataDir            string        `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	DataFile           string        `mapstructure:"data_file" json:"data_file" yaml:"data_file"`
	BackupRetention    int           `mapstructure:"backup_retention" json:"backup_retention" yaml:"backup_retention"`
	RecoveryCandidates int           `mapstructure:"recovery_candidates" json:"recovery_candidates" yaml:"recovery_candidates"`
	SaveDebounce       time.Duration `mapstructure:"save_debounce" json:"save_debounce" yaml:"save_debounce"`
	SaveRetries        int           `mapstructure:"save_retries" json:"save_retries" yaml:"save_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	LogLevel           string        `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	Listen             string        `mapstructure:"listen" json:"listen" yaml:"listen"`
}

// Defaults.
const (
	DefaultDataFile           = "tasks.json"
	DefaultBackupRetention    = 10
	DefaultRecoveryCandidates = 3
	DefaultSaveDebounce       = time.Second
	DefaultSaveRetries        = 3
	DefaultRetryDelay         = 500 * time.Millisecond
	DefaultLogLevel           = "info"
	DefaultListen             = "127.0.0.1:8420"
)

// BackupDirName is the backup subdirectory next to the data file.
const BackupDirName = "backups"

// Config validation errors.
var (
	ErrDataDirRequired   = errors.New("data directory must not be empty")
	ErrDataFileInvalid   = errors.New("data file must be a plain file name")
	ErrRetentionInvalid  = errors.New("backup retention must be positive")
	ErrCandidatesInvalid = errors.New("recovery candidates must be positive")
	ErrDebounceInvalid   = errors.New("save debounce must not be negative")
	ErrRetriesInvalid    = errors.New("save retries must be positive")
	ErrRetryDelayInvalid = errors.New("retry delay must not be negative")
)

// DefaultConfig returns a Config for dataDir with every other field at its
// default.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		DataFile:           DefaultDataFile,
		BackupRetention:    DefaultBackupRetention,
		RecoveryCandidates: DefaultRecoveryCandidates,
		SaveDebounce:       DefaultSaveDebounce,
		SaveRetries:        DefaultSaveRetries,
		RetryDelay:         DefaultRetryDelay,
		LogLevel:           DefaultLogLevel,
		Listen:             DefaultListen,
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirRequired
	}
	if c.DataFile == "" || c.DataFile != filepath.Base(c.DataFile) || c.DataFile == "." || c.DataFile == ".." {
		return ErrDataFileInvalid
	}
	if c.BackupRetention < 1 {
		return ErrRetentionInvalid
	}
	if c.RecoveryCandidates < 1 {
		return ErrCandidatesInvalid
	}
	if c.SaveDebounce < 0 {
		return ErrDebounceInvalid
	}
	if c.SaveRetries < 1 {
		return ErrRetriesInvalid
	}
	if c.RetryDelay < 0 {
		return ErrRetryDelayInvalid
	}
	return nil
}

// Path returns the primary data file path.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, c.DataFile)
}

// BackupDir returns the backup directory next to the data file.
func (c Config) BackupDir() string {
	return filepath.Join(c.DataDir, BackupDirName)
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ConfigLoader struct {
	logger *zap.Logger
	v      *viper.Viper
}

func NewConfigLoader(logger *zap.Logger) *ConfigLoader {
	v := viper.New()
	v.SetConfigType("yaml")
	return &ConfigLoader{
		logger: logger,
		v:      v,
	}
}

func (cl *ConfigLoader) Load(filePath string) (*Config, error) {
	cl.v.SetConfigFile(filePath)
	if err := cl.v.ReadInConfig(); err != nil {
		cl.logger.Error("Failed to read config file", zap.String("file", filePath), zap.Error(err))
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := cl.v.Unmarshal(&cfg); err != nil {
		cl.logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validate(&cfg); err != nil {
		cl.logger.Error("Config validation failed", zap.Error(err))
		return nil, err
	}

	cl.logger.Info("Config loaded successfully", zap.String("file", filePath))
	return &cfg, nil
}

func (cl *ConfigLoader) validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Pipeline.DefinitionsPath == "" {
		return fmt.Errorf("pipeline.definitions_path required")
	}
	if cfg.Pipeline.Shell == "" {
		cfg.Pipeline.Shell = "/bin/sh" // Default to the standard shell
	}
	if cfg.Pipeline.InputDir == "" {
		cfg.Pipeline.InputDir = "./input"
	}

	if cfg.Pipeline.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be non-negative")
	}
	if cfg.Pipeline.Retry.MaxAttempts == 0 {
		cfg.Pipeline.Retry.MaxAttempts = 3 // Default
	}
	if cfg.Pipeline.Retry.InitialIntervalSec <= 0 {
		cfg.Pipeline.Retry.InitialIntervalSec = 1.0 // Default
	}
	if cfg.Pipeline.Retry.BackoffCoefficient <= 1 {
		cfg.Pipeline.Retry.BackoffCoefficient = 2.0 // Default
	}

	if cfg.Import.LibraryDir == "" && (cfg.Import.Tag != "" || cfg.Import.GroupWithSource) {
		return fmt.Errorf("import.library_dir required when tagging or grouping is enabled")
	}

	storage := strings.ToLower(cfg.Storage.Type)
	switch storage {
	case "":
		// Archiving disabled
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region required")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3 access_key and secret_key required")
		}
	case "gcloud":
		if cfg.Storage.GCloud.Bucket == "" {
			return fmt.Errorf("bucket required for gcloud")
		}
	case "r2":
		if cfg.Storage.R2.Bucket == "" {
			return fmt.Errorf("bucket required for r2")
		}
	case "local":
		if cfg.Storage.Local.BasePath == "" {
			cfg.Storage.Local.BasePath = "./archive"
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", storage)
	}
	cfg.Storage.Type = storage

	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@daily"
	}
	if cfg.Cleanup.MaxAgeHours <= 0 {
		cfg.Cleanup.MaxAgeHours = 720 // 30 days
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if !isValidLogLevel(cfg.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "console"
	}
	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("file_path required for file logging")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	levels := []string{"debug", "info", "warn", "error"}
	for _, l := range levels {
		if strings.ToLower(level) == l {
			return true
		}
	}
	return false
}

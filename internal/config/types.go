package config

import (
	types "PrintForge/pkg"
)

type Config struct {
	Server   types.ServerConfig   `mapstructure:"server" json:"server"`
	Database DatabaseConfig       `mapstructure:"database" json:"database"`
	Pipeline types.PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Import   types.ImportConfig   `mapstructure:"import" json:"import"`
	Storage  types.StorageConfig  `mapstructure:"storage" json:"storage"`
	Cleanup  types.CleanupConfig  `mapstructure:"cleanup" json:"cleanup"`
	Logging  types.LoggingConfig  `mapstructure:"logging" json:"logging"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn"`
}

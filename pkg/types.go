package types

type PipelineConfig struct {
	DefinitionsPath string                            `mapstructure:"definitions_path" json:"definitions_path"`
	Shell           string                            `mapstructure:"shell" json:"shell"`
	InputDir        string                            `mapstructure:"input_dir" json:"input_dir"`
	ExiftoolPath    string                            `mapstructure:"exiftool_path" json:"exiftool_path"`
	StepOptions     map[string]map[string]interface{} `mapstructure:"step_options" json:"step_options"`
	Retry           RetryConfig                       `mapstructure:"retry" json:"retry"`
}

type RetryConfig struct {
	MaxAttempts        int32   `mapstructure:"max_attempts" json:"max_attempts"`
	InitialIntervalSec float64 `mapstructure:"initial_interval_sec" json:"initial_interval_sec"`
	BackoffCoefficient float64 `mapstructure:"backoff_coefficient" json:"backoff_coefficient"`
}

type ImportConfig struct {
	LibraryDir      string `mapstructure:"library_dir" json:"library_dir"`
	Tag             string `mapstructure:"tag" json:"tag"`
	GroupWithSource bool   `mapstructure:"group_with_source" json:"group_with_source"`
}

type CleanupConfig struct {
	Schedule    string `mapstructure:"schedule" json:"schedule"`
	MaxAgeHours int    `mapstructure:"max_age_hours" json:"max_age_hours"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type" json:"type"`
	Local  LocalConfig  `mapstructure:"local" json:"local"`
	S3     S3Config     `mapstructure:"s3" json:"s3"`
	GCloud GCloudConfig `mapstructure:"gcloud" json:"gcloud"`
	R2     R2Config     `mapstructure:"r2" json:"r2"`
}

type LocalConfig struct {
	BasePath string `mapstructure:"base_path" json:"base_path"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket" json:"bucket"`
	Region          string `mapstructure:"region" json:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secret_access_key"`
}

type GCloudConfig struct {
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	ProjectID string `mapstructure:"project_id" json:"project_id"`
}

type R2Config struct {
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	AccountID string `mapstructure:"account_id" json:"account_id"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level" json:"level"`
	Output   string `mapstructure:"output" json:"output"`
	FilePath string `mapstructure:"file_path" json:"file_path"`
}

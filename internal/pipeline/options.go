package pipeline

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Options configures an Engine. StepOptions carries per-code settings as
// raw maps, decoded and validated at engine construction.
type Options struct {
	ExiftoolPath string
	StepOptions  map[string]map[string]interface{}
}

// GrainOptions holds the extra template parameter for the GR step
type GrainOptions struct {
	Strength int `json:"strength" mapstructure:"strength"`
}

// SetDefaults sets default values for missing configuration
func (o *GrainOptions) SetDefaults() {
	if o.Strength == 0 {
		o.Strength = 50
	}
}

// Validate checks if the configuration is valid
func (o *GrainOptions) Validate() error {
	if o.Strength < 1 || o.Strength > 100 {
		return fmt.Errorf("strength must be between 1 and 100, got: %d", o.Strength)
	}
	return nil
}

// ResolutionOptions configures the dimension probe run by the RES builtin
type ResolutionOptions struct {
	ProbeCommand string `json:"probe_command" mapstructure:"probe_command"`
}

// SetDefaults sets default values for missing configuration
func (o *ResolutionOptions) SetDefaults() {
	if o.ProbeCommand == "" {
		o.ProbeCommand = "identify -format %wx%h %s > %s"
	}
}

// Validate checks if the configuration is valid
func (o *ResolutionOptions) Validate() error {
	if !strings.Contains(o.ProbeCommand, "%s") {
		return fmt.Errorf("probe_command must contain %%s placeholders, got: %s", o.ProbeCommand)
	}
	return nil
}

// ExifOptions configures which tags the EXIF transfer skips
type ExifOptions struct {
	Exclude []string `json:"exclude" mapstructure:"exclude"`
}

// SetDefaults sets default values for missing configuration
func (o *ExifOptions) SetDefaults() {
	if len(o.Exclude) == 0 {
		o.Exclude = []string{
			"SourceFile", "ExifToolVersion", "FileName", "Directory",
			"FileSize", "FileModifyDate", "FileAccessDate", "FileInodeChangeDate",
			"FilePermissions", "FileType", "FileTypeExtension", "MIMEType",
			"ImageWidth", "ImageHeight", "ImageSize", "Megapixels",
		}
	}
}

// Validate checks if the configuration is valid
func (o *ExifOptions) Validate() error {
	for _, tag := range o.Exclude {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("exclude entries cannot be blank")
		}
	}
	return nil
}

type stepOptions struct {
	Grain      GrainOptions
	Resolution ResolutionOptions
	Exif       ExifOptions
}

type stepOption interface {
	SetDefaults()
	Validate() error
}

func decodeStepOptions(raw map[string]map[string]interface{}) (*stepOptions, error) {
	opts := &stepOptions{}

	if err := decodeOptions(raw[CodeGrain], &opts.Grain); err != nil {
		return nil, fmt.Errorf("invalid %s options: %w", CodeGrain, err)
	}
	if err := decodeOptions(raw[CodeResolution], &opts.Resolution); err != nil {
		return nil, fmt.Errorf("invalid %s options: %w", CodeResolution, err)
	}
	if err := decodeOptions(raw[CodeExifTransfer], &opts.Exif); err != nil {
		return nil, fmt.Errorf("invalid %s options: %w", CodeExifTransfer, err)
	}
	return opts, nil
}

func decodeOptions(raw map[string]interface{}, out stepOption) error {
	if raw != nil {
		if err := mapstructure.Decode(raw, out); err != nil {
			return fmt.Errorf("failed to decode options: %w", err)
		}
	}
	out.SetDefaults()
	return out.Validate()
}

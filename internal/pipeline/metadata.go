package pipeline

import (
	"fmt"
	"strconv"
	"sync"

	exiftool "github.com/barasher/go-exiftool"
)

// exifSession lazily starts one long-lived exiftool process and shares it
// between the EXIF transfer step and the final metadata pass. Workflows
// that never touch metadata never pay for the process.
type exifSession struct {
	binaryPath string

	mu sync.Mutex
	et *exiftool.Exiftool
}

func newExifSession(binaryPath string) *exifSession {
	return &exifSession{binaryPath: binaryPath}
}

func (s *exifSession) tool() (*exiftool.Exiftool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.et != nil {
		return s.et, nil
	}

	var opts []func(*exiftool.Exiftool) error
	if s.binaryPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(s.binaryPath))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	s.et = et
	return et, nil
}

func (s *exifSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.et == nil {
		return nil
	}
	err := s.et.Close()
	s.et = nil
	return err
}

// TransferFields copies every source tag onto dest except the excluded
// ones, returning how many were written.
func (s *exifSession) TransferFields(source, dest string, exclude []string) (int, error) {
	et, err := s.tool()
	if err != nil {
		return 0, err
	}

	extracted := et.ExtractMetadata(source)
	if len(extracted) == 0 {
		return 0, fmt.Errorf("no metadata extracted from %s", source)
	}
	if extracted[0].Err != nil {
		return 0, fmt.Errorf("failed to read metadata from %s: %w", source, extracted[0].Err)
	}

	fields := filterFields(extracted[0].Fields, exclude)
	if len(fields) == 0 {
		return 0, nil
	}

	fms := []exiftool.FileMetadata{{File: dest, Fields: fields}}
	et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return 0, fmt.Errorf("failed to write metadata to %s: %w", dest, fms[0].Err)
	}
	return len(fields), nil
}

// WritePPI stamps the computed print resolution onto the file.
func (s *exifSession) WritePPI(path string, ppi int) error {
	et, err := s.tool()
	if err != nil {
		return err
	}

	fm := exiftool.FileMetadata{File: path, Fields: map[string]interface{}{}}
	fm.SetString("XResolution", strconv.Itoa(ppi))
	fm.SetString("YResolution", strconv.Itoa(ppi))
	fm.SetString("ResolutionUnit", "inches")

	fms := []exiftool.FileMetadata{fm}
	et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("failed to write print resolution to %s: %w", path, fms[0].Err)
	}
	return nil
}

func filterFields(fields map[string]interface{}, exclude []string) map[string]interface{} {
	excluded := make(map[string]bool, len(exclude))
	for _, tag := range exclude {
		excluded[tag] = true
	}

	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if !excluded[key] {
			out[key] = value
		}
	}
	return out
}

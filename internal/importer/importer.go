package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
)

const manifestName = "manifest.csv"

var manifestHeaders = []string{"recorded_at", "event", "image_id", "path", "detail"}

// Filename patterns tried in order; first parseable match wins.
var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(\d{8}_\d{6})`), "20060102_150405"},
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
}

// ImageHandle identifies a file that has been imported into the library.
type ImageHandle struct {
	ID         uuid.UUID `json:"id"`
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
}

// Importer files finished images into a date-laid-out library directory and
// keeps a manifest of imports, groupings and attached keywords.
type Importer struct {
	logger  *zap.Logger
	library string

	mu sync.Mutex
	et *exiftool.Exiftool
}

func New(libraryDir string, logger *zap.Logger) *Importer {
	return &Importer{logger: logger, library: libraryDir}
}

// Import copies path into <library>/YYYY/YYYY-MM-DD/<name>, suffixing the
// name if it is already taken, and records the import in the manifest.
func (im *Importer) Import(ctx context.Context, path string) (*ImageHandle, error) {
	taken := im.captureDate(path)

	destDir := filepath.Join(im.library, taken.Format("2006"), taken.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create library folder: %w", err)
	}

	dest := uniquePath(filepath.Join(destDir, filepath.Base(path)))
	if err := copyFile(path, dest); err != nil {
		return nil, fmt.Errorf("copy into library: %w", err)
	}

	handle := &ImageHandle{ID: uuid.New(), Path: dest, CapturedAt: taken}
	if err := im.appendManifest("import", handle, path); err != nil {
		return nil, err
	}

	im.logger.Info("Imported into library",
		zap.String("source", path),
		zap.String("path", dest),
		zap.Time("captured_at", taken))
	return handle, nil
}

// GroupWith records that the imported image belongs with leader, typically
// the source file the pipeline started from.
func (im *Importer) GroupWith(ctx context.Context, handle *ImageHandle, leader string) error {
	if err := im.appendManifest("group", handle, leader); err != nil {
		return err
	}
	im.logger.Debug("Recorded grouping", zap.String("path", handle.Path), zap.String("leader", leader))
	return nil
}

// AttachTag appends a keyword to the imported image and records it in the
// manifest. Keywords already present are left alone.
func (im *Importer) AttachTag(ctx context.Context, handle *ImageHandle, tag string) error {
	et, err := im.tool()
	if err != nil {
		return fmt.Errorf("start exiftool: %w", err)
	}

	fms := et.ExtractMetadata(handle.Path)
	if len(fms) == 0 {
		return fmt.Errorf("no metadata returned for %s", handle.Path)
	}
	if fms[0].Err != nil {
		return fmt.Errorf("read metadata: %w", fms[0].Err)
	}

	tags, err := fms[0].GetStrings("Keywords")
	if err != nil {
		tags = nil
	}
	for _, existing := range tags {
		if existing == tag {
			return nil
		}
	}
	fms[0].SetStrings("Keywords", append(tags, tag))

	et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("write keywords: %w", fms[0].Err)
	}

	if err := im.appendManifest("tag", handle, tag); err != nil {
		return err
	}
	im.logger.Debug("Attached keyword", zap.String("path", handle.Path), zap.String("tag", tag))
	return nil
}

func (im *Importer) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.et == nil {
		return nil
	}
	err := im.et.Close()
	im.et = nil
	return err
}

func (im *Importer) tool() (*exiftool.Exiftool, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.et != nil {
		return im.et, nil
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	im.et = et
	return im.et, nil
}

// captureDate resolves the best available date: EXIF first, then filename
// patterns, then the file's modification time.
func (im *Importer) captureDate(path string) time.Time {
	if t, err := exifDate(path); err == nil {
		return t
	}
	if t, ok := dateFromName(filepath.Base(path)); ok {
		return t
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

func exifDate(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}
	return x.DateTime()
}

func dateFromName(name string) (time.Time, bool) {
	for _, p := range datePatterns {
		matches := p.re.FindStringSubmatch(name)
		if len(matches) < 2 {
			continue
		}
		if t, err := time.Parse(p.layout, matches[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func (im *Importer) appendManifest(event string, handle *ImageHandle, detail string) error {
	if err := os.MkdirAll(im.library, 0755); err != nil {
		return fmt.Errorf("create library folder: %w", err)
	}

	path := filepath.Join(im.library, manifestName)
	_, statErr := os.Stat(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		w.Write(manifestHeaders)
	}
	w.Write([]string{
		time.Now().Format("2006-01-02 15:04:05"),
		event,
		handle.ID.String(),
		handle.Path,
		detail,
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

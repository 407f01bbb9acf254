package importer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeImage(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDateFromName(t *testing.T) {
	tcs := map[string]struct {
		name string
		want string
		ok   bool
	}{
		"timestamp": {
			name: "20240102_130455_print.jpg",
			want: "2024-01-02 13:04:55",
			ok:   true,
		},
		"iso date": {
			name: "scan_2024-05-06.png",
			want: "2024-05-06 00:00:00",
			ok:   true,
		},
		"no date": {
			name: "IMG_1234.jpg",
			ok:   false,
		},
		"unparseable timestamp falls through": {
			name: "99999999_123456.jpg",
			ok:   false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got, ok := dateFromName(tc.name)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got.Format("2006-01-02 15:04:05"))
			}
		})
	}
}

func TestImportLaysOutByModTime(t *testing.T) {
	srcDir := t.TempDir()
	library := t.TempDir()
	src := writeImage(t, srcDir, "final.jpg", "pixels")

	taken := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(src, taken, taken))

	im := New(library, zap.NewNop())
	handle, err := im.Import(context.Background(), src)
	require.NoError(t, err)

	want := filepath.Join(library, "2024", "2024-03-09", "final.jpg")
	assert.Equal(t, want, handle.Path)
	assert.Equal(t, "2024-03-09", handle.CapturedAt.Format("2006-01-02"))

	data, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestImportUsesFilenameDate(t *testing.T) {
	srcDir := t.TempDir()
	library := t.TempDir()
	src := writeImage(t, srcDir, "20240102_130455_print.jpg", "pixels")

	im := New(library, zap.NewNop())
	handle, err := im.Import(context.Background(), src)
	require.NoError(t, err)

	want := filepath.Join(library, "2024", "2024-01-02", "20240102_130455_print.jpg")
	assert.Equal(t, want, handle.Path)
}

func TestImportSuffixesCollisions(t *testing.T) {
	library := t.TempDir()
	taken := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)

	firstDir := t.TempDir()
	first := writeImage(t, firstDir, "print.jpg", "one")
	require.NoError(t, os.Chtimes(first, taken, taken))

	secondDir := t.TempDir()
	second := writeImage(t, secondDir, "print.jpg", "two")
	require.NoError(t, os.Chtimes(second, taken, taken))

	im := New(library, zap.NewNop())
	h1, err := im.Import(context.Background(), first)
	require.NoError(t, err)
	h2, err := im.Import(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, "print.jpg", filepath.Base(h1.Path))
	assert.Equal(t, "print_1.jpg", filepath.Base(h2.Path))

	data, err := os.ReadFile(h2.Path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestImportRecordsManifest(t *testing.T) {
	srcDir := t.TempDir()
	library := t.TempDir()
	src := writeImage(t, srcDir, "final.jpg", "pixels")

	im := New(library, zap.NewNop())
	handle, err := im.Import(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, im.GroupWith(context.Background(), handle, src))

	data, err := os.ReadFile(filepath.Join(library, manifestName))
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, manifestHeaders, records[0])

	assert.Equal(t, "import", records[1][1])
	assert.Equal(t, handle.ID.String(), records[1][2])
	assert.Equal(t, handle.Path, records[1][3])
	assert.Equal(t, src, records[1][4])

	assert.Equal(t, "group", records[2][1])
	assert.Equal(t, src, records[2][4])
}

func TestImportMissingSource(t *testing.T) {
	library := t.TempDir()

	im := New(library, zap.NewNop())
	_, err := im.Import(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
}

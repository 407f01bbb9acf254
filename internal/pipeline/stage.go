package pipeline

import (
	"fmt"
	"io"
	"os"
)

const snapshotSuffix = ".orig"

// snapshot copies the input next to itself before the first step touches
// it, preserving an untouched metadata source for the EXIF transfer.
func snapshot(path string) (string, error) {
	snap := path + snapshotSuffix
	if err := copyFile(path, snap); err != nil {
		return "", err
	}
	return snap, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// replaceFile moves src over dst, falling back to copy and remove when a
// rename cannot cross the filesystem boundary.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// Download writes one artifact of jobID into dir and returns the file path.
// The file appears only once it is complete.
func (v *View) Download(ctx context.Context, jobID string, format domain.Format, dir string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("job id is required")
	}
	if !format.Valid() {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("output directory is required")
	}

	stem := jobID
	if row, ok := v.Find(jobID); ok && row.Filename != "" {
		stem = strings.TrimSuffix(row.Filename, filepath.Ext(row.Filename))
	}
	destination := filepath.Join(dir, artifactFileName(stem, format))

	if err := v.downloadToFile(ctx, jobID, format, destination); err != nil {
		return "", err
	}
	return destination, nil
}

func (v *View) downloadToFile(ctx context.Context, jobID string, format domain.Format, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	fetchErr := v.src.Download(ctx, jobID, format, file)
	closeErr := file.Close()
	if fetchErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("download %s of %s: %w", format, jobID, fetchErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}

// artifactFileName builds a safe file name from a job label.
func artifactFileName(stem string, format domain.Format) string {
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(stem))
	stem = strings.Trim(stem, ". ")
	if stem == "" {
		stem = "subtitles"
	}
	return stem + "." + string(format)
}

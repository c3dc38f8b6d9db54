package ingest

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/model"
)

// ExtractZIP extracts all files from a ZIP archive to the destination
// directory and returns the extracted paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	return extracted, nil
}

// readZIPDrafts extracts a zipped export and parses every supported entry.
// Portals commonly zip one large CSV; archives with several files get every
// parseable entry read. Nested archives are skipped.
func readZIPDrafts(ctx context.Context, zipPath string, fm FieldMap, sourceURL string) ([]model.Draft, int, error) {
	destDir, err := os.MkdirTemp("", "leadscout-zip-*")
	if err != nil {
		return nil, 0, eris.Wrap(err, "zip: temp dir")
	}
	defer os.RemoveAll(destDir) //nolint:errcheck

	entries, err := ExtractZIP(zipPath, destDir)
	if err != nil {
		return nil, 0, err
	}

	var (
		drafts  []model.Draft
		skipped int
		parsed  int
	)
	for _, entry := range entries {
		format, err := DetectFormat(entry)
		if err != nil || format == FormatZIP {
			continue
		}
		ds, sk, err := ReadFile(ctx, entry, fm, sourceURL)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "zip: entry %s", filepath.Base(entry))
		}
		drafts = append(drafts, ds...)
		skipped += sk
		parsed++
	}
	if parsed == 0 {
		return nil, 0, eris.Errorf("zip: no parseable entries in %s", zipPath)
	}
	return drafts, skipped, nil
}

// extractZIPEntry extracts one zip.File, guarding against zip-slip paths.
// Returns the extracted file path, or "" for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	return destPath, nil
}

// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

var (
	extractedMu   sync.Mutex
	extractedDirs []string
)

// RemoveExtracted best-effort removes every script file extracted from an
// archive during linking. Call it at process shutdown; extracted files are
// otherwise left in the temp directory.
func RemoveExtracted() {
	extractedMu.Lock()
	dirs := extractedDirs
	extractedDirs = nil
	extractedMu.Unlock()

	for _, dir := range dirs {
		_ = os.RemoveAll(dir)
	}
}

func trackExtracted(dir string) {
	extractedMu.Lock()
	extractedDirs = append(extractedDirs, dir)
	extractedMu.Unlock()
}

// isArchivePath reports whether a resolution root is a packaged archive
// rather than a directory.
func isArchivePath(p string) bool {
	return strings.HasSuffix(p, ".zip") || strings.HasSuffix(p, ".tar.gz") || strings.HasSuffix(p, ".tgz")
}

// extractScript copies one entry out of an archive into a private temp
// location, unique per extraction, and returns the extracted file path.
func extractScript(archive, entryPath string) (string, error) {
	entryPath = path.Clean(strings.ReplaceAll(entryPath, "\\", "/"))

	var src io.ReadCloser
	var err error
	if strings.HasSuffix(archive, ".zip") {
		src, err = openZipEntry(archive, entryPath)
	} else {
		src, err = openTarGzEntry(archive, entryPath)
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	dir := filepath.Join(os.TempDir(), uuid.NewString())
	dest := filepath.Join(dir, path.Base(entryPath))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("generated extraction path %s already exists", dest)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}
	trackExtracted(dir)

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating extracted file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("extracting %s from %s: %w", entryPath, archive, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("extracting %s from %s: %w", entryPath, archive, err)
	}
	return dest, nil
}

func openZipEntry(archive, entryPath string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archive, err)
	}
	for _, f := range zr.File {
		if path.Clean(f.Name) != entryPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("opening %s in %s: %w", entryPath, archive, err)
		}
		return &closerChain{ReadCloser: rc, also: zr}, nil
	}
	zr.Close()
	return nil, fmt.Errorf("no entry %s in archive %s", entryPath, archive)
}

func openTarGzEntry(archive, entryPath string) (io.ReadCloser, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archive, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening archive %s: %w", archive, err)
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			gz.Close()
			f.Close()
			return nil, fmt.Errorf("reading archive %s: %w", archive, err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Clean(hdr.Name) != entryPath {
			continue
		}
		return &closerChain{ReadCloser: io.NopCloser(tr), also: &closerChain{ReadCloser: gz, also: f}}, nil
	}
	gz.Close()
	f.Close()
	return nil, fmt.Errorf("no entry %s in archive %s", entryPath, archive)
}

// closerChain closes a second closer after the primary one.
type closerChain struct {
	io.ReadCloser
	also io.Closer
}

func (c *closerChain) Close() error {
	err := c.ReadCloser.Close()
	if alsoErr := c.also.Close(); err == nil {
		err = alsoErr
	}
	return err
}

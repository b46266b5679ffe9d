// Package installer provides pipeline package installers.
// Clean Architecture: Adapters implementing ports.PackageInstaller.
package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// PipInstaller installs packages with `python -m pip install`.
type PipInstaller struct {
	python string
}

var _ ports.PackageInstaller = (*PipInstaller)(nil)

// NewPipInstaller creates an installer using the given python binary.
func NewPipInstaller(python string) *PipInstaller {
	if python == "" {
		python = "python3"
	}
	return &PipInstaller{python: python}
}

// Install runs pip for url and reports its output on failure.
func (i *PipInstaller) Install(ctx context.Context, url string) error {
	cmd := exec.CommandContext(ctx, i.python, "-m", "pip", "install", "--quiet", url)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install %s: %w: %s", url, err, strings.TrimSpace(out.String()))
	}
	return nil
}

// ArchiveInstaller unpacks .tar.gz model packages into packagesDir, where
// the native runtime resolves named pipelines.
type ArchiveInstaller struct {
	packagesDir string
	client      *http.Client
	maxSize     int64
}

var _ ports.PackageInstaller = (*ArchiveInstaller)(nil)

// NewArchiveInstaller creates an installer writing under packagesDir.
func NewArchiveInstaller(packagesDir string) *ArchiveInstaller {
	return &ArchiveInstaller{
		packagesDir: packagesDir,
		client:      &http.Client{Timeout: 10 * time.Minute},
		maxSize:     2 << 30,
	}
}

// Install downloads url and extracts it. The archive must contain a single
// top-level directory, which becomes the package name.
func (i *ArchiveInstaller) Install(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading package: %s returned %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(i.packagesDir, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(i.packagesDir, ".install-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	top, err := extract(io.LimitReader(resp.Body, i.maxSize), staging)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", url, err)
	}

	dest := filepath.Join(i.packagesDir, top)
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Rename(filepath.Join(staging, top), dest)
}

// extract unpacks a gzipped tarball into dir and returns its top-level directory.
func extract(r io.Reader, dir string) (string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var top string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("illegal path %q", hdr.Name)
		}
		root := strings.SplitN(filepath.ToSlash(name), "/", 2)[0]
		if top == "" {
			top = root
		} else if root != top {
			return "", fmt.Errorf("archive has more than one top-level entry (%q, %q)", top, root)
		}

		target := filepath.Join(dir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return "", err
			}
			if err := f.Close(); err != nil {
				return "", err
			}
		}
	}

	if top == "" || top == "." {
		return "", errors.New("empty archive")
	}
	if info, err := os.Stat(filepath.Join(dir, top)); err != nil || !info.IsDir() {
		return "", fmt.Errorf("top-level entry %q is not a directory", top)
	}
	return top, nil
}

// Package hub provides content-hub download adapters.
// Clean Architecture: Adapter implementing ports.HubFetcher.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// HuggingFace downloads repository snapshots from a Hugging Face compatible hub.
type HuggingFace struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ ports.HubFetcher = (*HuggingFace)(nil)

// NewHuggingFace creates a fetcher for endpoint. token may be empty.
func NewHuggingFace(endpoint, token string) *HuggingFace {
	if endpoint == "" {
		endpoint = "https://huggingface.co"
	}
	return &HuggingFace{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Minute},
	}
}

type modelInfo struct {
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

// Fetch downloads every file of repo into destDir/<repo with "/" replaced by "--">.
func (h *HuggingFace) Fetch(ctx context.Context, repo, destDir string) (string, error) {
	if repo == "" || strings.Contains(repo, "..") {
		return "", fmt.Errorf("invalid repository %q", repo)
	}

	files, err := h.listFiles(ctx, repo)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(destDir, strings.ReplaceAll(repo, "/", "--"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	for _, f := range files {
		name := filepath.Clean(filepath.FromSlash(f))
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return "", fmt.Errorf("illegal file name %q in %s", f, repo)
		}
		if err := h.download(ctx, repo, f, filepath.Join(dir, name)); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (h *HuggingFace) listFiles(ctx context.Context, repo string) ([]string, error) {
	resp, err := h.get(ctx, h.endpoint+"/api/models/"+repo)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", repo, err)
	}
	defer resp.Body.Close()

	var info modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding model info: %w", err)
	}
	files := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		files = append(files, s.RFilename)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("repository %s has no files", repo)
	}
	return files, nil
}

func (h *HuggingFace) download(ctx context.Context, repo, file, target string) error {
	resp, err := h.get(ctx, h.endpoint+"/"+repo+"/resolve/main/"+escapePath(file))
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", file, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (h *HuggingFace) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %d", u, resp.StatusCode)
	}
	return resp, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

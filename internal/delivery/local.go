package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// MountPath is where the API serves files written by LocalSink.
const MountPath = "/memos/"

// LocalSink writes documents into a directory served by the API itself.
type LocalSink struct {
	Dir string
	// BaseURL is prepended to MountPath. When empty the sink returns a
	// path-only URL and the caller resolves it against the request host.
	BaseURL string
}

// NewLocalSink ensures dir exists and returns a sink writing into it.
func NewLocalSink(dir, baseURL string) (*LocalSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("delivery: local directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memo dir: %w", err)
	}
	return &LocalSink{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalSink) Name() string { return "local" }

// Deliver writes through a temp file and renames it into place so the URL
// never points at a partially written document.
func (s *LocalSink) Deliver(ctx context.Context, doc Document) (string, error) {
	if err := validateName(doc.Name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.Dir, ".memo-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(doc.Body); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write %s: %w", doc.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("flush %s: %w", doc.Name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close %s: %w", doc.Name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod %s: %w", doc.Name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, doc.Name)); err != nil {
		cleanup()
		return "", fmt.Errorf("publish %s: %w", doc.Name, err)
	}
	return s.BaseURL + MountPath + url.PathEscape(doc.Name), nil
}

// Check verifies the directory still exists and accepts writes.
func (s *LocalSink) Check(context.Context) error {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.Dir)
	}
	tmp, err := os.CreateTemp(s.Dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("memo dir not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

// FileServer serves documents from dir under MountPath. Directory listings
// and dot files (including in-flight temp files) are hidden.
func FileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.StripPrefix(MountPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(filepath.Base(name), ".") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))
}

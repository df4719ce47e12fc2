// Package local implements the storage adapter on the local filesystem.
// Objects live under <basePath>/families/<familyId>/<folderPath>/<fileId>.<ext>.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

const familiesDir = "families"

// Config for the local adapter.
type Config struct {
	// BasePath is the storage root.
	BasePath string `mapstructure:"base_path" yaml:"base_path"`

	// AutoCreate creates the base path on demand during health checks.
	AutoCreate bool `mapstructure:"auto_create" yaml:"auto_create"`
}

// Adapter is the local filesystem storage backend.
type Adapter struct {
	basePath   string
	autoCreate bool
	logger     *slog.Logger
}

var _ storage.Adapter = (*Adapter)(nil)

func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is required")
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}
	return &Adapter{
		basePath:   abs,
		autoCreate: cfg.AutoCreate,
		logger:     logger,
	}, nil
}

func (a *Adapter) Type() string { return storage.TypeLocal }

// familyRoot returns the directory holding one family's objects.
func (a *Adapter) familyRoot(familyID string) string {
	return filepath.Join(a.basePath, familiesDir, familyID)
}

func (a *Adapter) Upload(ctx context.Context, m *metadata.FileMetadata, payload io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := storage.ObjectKey(m.FolderPath, m.FileID, m.Extension())
	dest := filepath.Join(a.familyRoot(m.FamilyID), filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating storage directory: %w", err)
	}

	// Write to a temp file in the same directory and rename, so a failed
	// upload never leaves a partial object under the final name.
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+m.FileID+".part-")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalizing object: %w", err)
	}

	a.logger.Debug("object stored", "file_id", m.FileID, "path", dest)
	return dest, nil
}

func (a *Adapter) Download(ctx context.Context, fileID, familyID string) (io.ReadCloser, error) {
	path, err := a.resolve(ctx, fileID, familyID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

func (a *Adapter) Delete(ctx context.Context, fileID, familyID string) (bool, error) {
	path, err := a.resolve(ctx, fileID, familyID)
	if err != nil {
		if err == storage.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing object: %w", err)
	}
	return true, nil
}

func (a *Adapter) List(ctx context.Context, familyID, folderPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := a.familyRoot(familyID)
	if prefix := storage.SanitizeFolderPath(folderPath); prefix != "" {
		dir = filepath.Join(dir, filepath.FromSlash(prefix))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing folder: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (a *Adapter) Healthy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(a.basePath)
	if os.IsNotExist(err) {
		if !a.autoCreate {
			return fmt.Errorf("base path %s does not exist", a.basePath)
		}
		if err := os.MkdirAll(a.basePath, 0o755); err != nil {
			return fmt.Errorf("creating base path: %w", err)
		}
		info, err = os.Stat(a.basePath)
	}
	if err != nil {
		return fmt.Errorf("statting base path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base path %s is not a directory", a.basePath)
	}

	// Writability probe.
	probe, err := os.CreateTemp(a.basePath, ".healthcheck-")
	if err != nil {
		return fmt.Errorf("base path %s is not writable: %w", a.basePath, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// AccessURL returns the API download path; local objects are always served
// through the gateway, so the expiry is not applicable.
func (a *Adapter) AccessURL(_ context.Context, fileID, familyID string, _ time.Duration) (string, error) {
	return fmt.Sprintf("/api/v1/storage/files/download/%s?familyId=%s",
		url.PathEscape(fileID), url.QueryEscape(familyID)), nil
}

// resolve scans the family namespace for an object whose leaf name starts
// with "<fileId>.".
func (a *Adapter) resolve(ctx context.Context, fileID, familyID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	root := a.familyRoot(familyID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), fileID+".") || d.Name() == fileID {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning family namespace: %w", err)
	}
	if found == "" {
		return "", storage.ErrNotFound
	}
	return found, nil
}

package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/sirupsen/logrus"
)

// localPublisher writes snapshots below a directory.
type localPublisher struct {
	log logrus.FieldLogger
	dir string
}

var _ Publisher = (*localPublisher)(nil)

// NewLocalPublisher creates a publisher writing below cfg.Dir.
func NewLocalPublisher(log logrus.FieldLogger, cfg *config.LocalExportConfig) Publisher {
	return &localPublisher{
		log: log.WithField("component", "local-publisher"),
		dir: filepath.Clean(cfg.Dir),
	}
}

// Preflight creates the export directory.
func (p *localPublisher) Preflight(_ context.Context) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	return nil
}

// Publish writes data to dir/key, replacing the file atomically.
func (p *localPublisher) Publish(_ context.Context, key string, data []byte) error {
	if !isAllowedKey(key) {
		return fmt.Errorf("key %q is not allowed", key)
	}

	full := filepath.Join(p.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", key, err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("renaming %s: %w", key, err)
	}

	p.log.WithField("path", full).Debug("Wrote snapshot")

	return nil
}

// isAllowedKey rejects empty, absolute, unclean or traversal keys.
func isAllowedKey(key string) bool {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}

	return path.Clean(key) == key
}

package export

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/sirupsen/logrus"
)

// Publisher writes snapshot objects to a remote or local target.
type Publisher interface {
	// Preflight verifies that the target is reachable and writable.
	Preflight(ctx context.Context) error

	// Publish writes data under key, which is a slash separated path
	// relative to the target's root.
	Publish(ctx context.Context, key string, data []byte) error
}

// NewPublisher creates the publisher for the enabled export target.
func NewPublisher(log logrus.FieldLogger, cfg *config.ExportConfig) (Publisher, error) {
	switch {
	case cfg.S3Enabled():
		return NewS3Publisher(log, cfg.S3), nil
	case cfg.LocalEnabled():
		return NewLocalPublisher(log, cfg.Local), nil
	default:
		return nil, fmt.Errorf("no export target enabled")
	}
}

// detectContentType returns a MIME type based on the key's extension.
func detectContentType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}

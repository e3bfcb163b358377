// Package mirror copies a run's artifacts to a remote blob store.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Artifact is one file produced by a run.
type Artifact struct {
	Path        string
	ContentType string
	Data        []byte
}

// Mirror uploads artifacts under <prefix>/<run id>/.
type Mirror struct {
	remote crawler.BlobStore
	prefix string
	logger *zap.Logger
}

// New returns a Mirror writing to remote.
func New(remote crawler.BlobStore, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{remote: remote, prefix: strings.Trim(prefix, "/"), logger: logger.Named("mirror")}
}

// Key returns the remote path for an artifact of runID.
func (m *Mirror) Key(runID, artifactPath string) string {
	return path.Join(m.prefix, runID, strings.TrimLeft(artifactPath, "/"))
}

// Upload copies every artifact and returns the URIs that succeeded. Each
// failure is logged and joined into the returned error; later artifacts are
// still attempted.
func (m *Mirror) Upload(ctx context.Context, runID string, artifacts []Artifact) ([]string, error) {
	if m == nil || m.remote == nil {
		return nil, nil
	}
	var (
		uris []string
		errs []error
	)
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		key := m.Key(runID, a.Path)
		uri, err := m.remote.PutObject(ctx, key, a.ContentType, bytes.NewReader(a.Data))
		if err != nil {
			m.logger.Warn("Artifact upload failed", zap.String("path", key), zap.Error(err))
			errs = append(errs, fmt.Errorf("upload %s: %w", a.Path, err))
			continue
		}
		uris = append(uris, uri)
	}
	m.logger.Info("Artifacts mirrored", zap.String("run_id", runID), zap.Int("uploaded", len(uris)), zap.Int("failed", len(errs)))
	return uris, errors.Join(errs...)
}

package inbound

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/goliatone/go-buildrequests/core"
)

const DefaultConfigPath = ".travis.yml"

// ConfigSource loads the raw build config document for a payload's commit.
// A missing document is reported as nil bytes and no error.
type ConfigSource interface {
	Fetch(ctx context.Context, payload core.Payload) ([]byte, error)
}

type ConfigSourceFunc func(ctx context.Context, payload core.Payload) ([]byte, error)

func (f ConfigSourceFunc) Fetch(ctx context.Context, payload core.Payload) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, payload)
}

// FSConfigSource reads <owner>/<name>/<Path> from FS, a checkout mirror
// keyed by repository slug.
type FSConfigSource struct {
	FS   fs.FS
	Path string
}

func (s FSConfigSource) Fetch(ctx context.Context, payload core.Payload) ([]byte, error) {
	if s.FS == nil {
		return nil, inboundInternal("inbound: config filesystem is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner := strings.TrimSpace(payload.Repository.Owner)
	name := strings.TrimSpace(payload.Repository.Name)
	if owner == "" || name == "" {
		return nil, inboundBadInput("inbound: repository owner and name are required", map[string]any{
			"repository": payload.Repository.Slug(),
		})
	}
	configPath := strings.TrimSpace(s.Path)
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	content, err := fs.ReadFile(s.FS, path.Join(owner, name, configPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return content, nil
}

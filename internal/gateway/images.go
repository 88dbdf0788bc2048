package gateway

import (
	"context"
	"strings"

	"movicloud/internal/core"
)

// Image sizes used by the catalog.
const (
	SizePoster   = "w500"
	SizeBackdrop = "w1280"
	SizeLogo     = "w500"
)

// ImageResolver builds image CDN URLs. It performs no network I/O of its own
// and never touches the response cache.
type ImageResolver struct {
	configs ConfigProvider
}

// NewImageResolver creates a resolver reading the image base from configs.
func NewImageResolver(configs ConfigProvider) *ImageResolver {
	return &ImageResolver{configs: configs}
}

// AssetURL returns <image base>/t/p/<size>/<path>. An empty path yields ""
// without reading configuration; an empty size means w500.
func (r *ImageResolver) AssetURL(ctx context.Context, path, size string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if size == "" {
		size = SizePoster
	}

	cfg, err := r.configs.Get(ctx)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(cfg.ImageBaseURL, "/")
	if base == "" {
		base = core.DefaultImageBaseURL
	}
	base = strings.TrimSuffix(base, "/t/p")

	return base + "/t/p/" + strings.Trim(size, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func (r *ImageResolver) PosterURL(ctx context.Context, path string) (string, error) {
	return r.AssetURL(ctx, path, SizePoster)
}

func (r *ImageResolver) BackdropURL(ctx context.Context, path string) (string, error) {
	return r.AssetURL(ctx, path, SizeBackdrop)
}

func (r *ImageResolver) LogoURL(ctx context.Context, path string) (string, error) {
	return r.AssetURL(ctx, path, SizeLogo)
}

// Package assets resolves image references to decoded pixel data.
//
// A reference can be a data URI (the certificate editor stores uploaded
// images this way), an http(s) URL, or a local file path. References are
// opaque to the rest of the pipeline; only this package knows how to fetch
// and decode them, and every failure surfaces as ASSET_LOAD naming the
// offending reference.
//
// Fetched bytes from remote references are stored in a pluggable cache so
// repeated batch runs against the same template skip the network.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/romega/certforge/pkg/cache"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/httputil"
	"github.com/romega/certforge/pkg/observability"
)

// maxAssetSize caps decoded asset downloads at 32 MiB.
const maxAssetSize = 32 << 20

// Loader fetches and decodes image references.
type Loader struct {
	client *http.Client
	cache  cache.Cache
}

// Option configures a Loader.
type Option func(*Loader)

// WithClient sets the HTTP client used for remote references.
func WithClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithCache sets the cache for fetched remote bytes.
func WithCache(c cache.Cache) Option {
	return func(l *Loader) { l.cache = c }
}

// NewLoader creates a loader with the default HTTP client and no caching.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client: httputil.NewClient(),
		cache:  cache.NewNullCache(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref to a decoded image.
// Failures are reported as ASSET_LOAD errors carrying the original
// reference so batch callers can identify the broken asset.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	if ref == "" {
		return nil, errors.New(errors.ErrCodeAssetLoad, "empty image reference")
	}

	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssetLoad, err, "decode image %s", describeRef(ref))
	}
	return img, nil
}

// fetch returns the raw bytes behind ref.
func (l *Loader) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetchRemote(ctx, ref)
	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeAssetLoad, err, "read image file %s", ref)
		}
		return data, nil
	}
}

// fetchRemote downloads a URL with retry on transient failures, consulting
// the cache first.
func (l *Loader) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	key := cache.AssetKey(url)
	if data, hit, err := l.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "asset")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "asset")

	var data []byte
	err := httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return httputil.Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return httputil.Retryable(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssetLoad, err, "fetch image %s", url)
	}

	if err := l.cache.Set(ctx, key, data, cache.TTLAsset); err == nil {
		observability.Cache().OnCacheSet(ctx, "asset", len(data))
	}
	return data, nil
}

// decodeDataURI extracts the payload of a data:[mediatype][;base64],data URI.
func decodeDataURI(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, errors.New(errors.ErrCodeAssetLoad, "malformed data URI %s", describeRef(ref))
	}

	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		// Percent-encoded plain data is not produced by the editor.
		return nil, errors.New(errors.ErrCodeAssetLoad, "unsupported data URI encoding %q", meta)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssetLoad, err, "decode base64 data URI")
	}
	return data, nil
}

// describeRef shortens long references (data URIs) for error messages.
func describeRef(ref string) string {
	const limit = 64
	if len(ref) <= limit {
		return ref
	}
	return ref[:limit] + "..."
}

// EncodePNGDataURI encodes raw PNG bytes as a data URI suitable for the
// queue sink's certificateImage field.
func EncodePNGDataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/romega/certforge/pkg/cache"
	"github.com/romega/certforge/pkg/errors"
)

// testPNG returns the bytes of a small solid-color PNG.
func testPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := imaging.New(w, h, c)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadDataURI(t *testing.T) {
	png := testPNG(t, 4, 2, color.NRGBA{R: 255, A: 255})
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	img, err := NewLoader().Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("bounds = %v, want 4x2", b)
	}
}

func TestLoadDataURIMalformed(t *testing.T) {
	tests := []string{
		"data:image/png;base64",      // no comma
		"data:image/png,rawpayload",  // not base64-encoded
		"data:image/png;base64,!!!!", // invalid base64
	}
	for _, ref := range tests {
		if _, err := NewLoader().Load(context.Background(), ref); !errors.Is(err, errors.ErrCodeAssetLoad) {
			t.Errorf("Load(%q) error = %v, want ASSET_LOAD", ref, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	png := testPNG(t, 8, 8, color.NRGBA{G: 255, A: 255})
	path := filepath.Join(t.TempDir(), "bg.png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	img, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 {
		t.Errorf("bounds = %v, want 8x8", b)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "/nonexistent/image.png")
	if !errors.Is(err, errors.ErrCodeAssetLoad) {
		t.Errorf("error = %v, want ASSET_LOAD", err)
	}
	if !strings.Contains(err.Error(), "/nonexistent/image.png") {
		t.Errorf("error should name the reference, got %v", err)
	}
}

func TestLoadRemote(t *testing.T) {
	png := testPNG(t, 16, 9, color.NRGBA{B: 255, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	img, err := NewLoader().Load(context.Background(), srv.URL+"/bg.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 9 {
		t.Errorf("bounds = %v, want 16x9", b)
	}
}

func TestLoadRemoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewLoader().Load(context.Background(), srv.URL+"/missing.png")
	if !errors.Is(err, errors.ErrCodeAssetLoad) {
		t.Errorf("error = %v, want ASSET_LOAD", err)
	}
}

func TestLoadRemoteUsesCache(t *testing.T) {
	png := testPNG(t, 2, 2, color.NRGBA{A: 255})
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	fileCache, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	loader := NewLoader(WithCache(fileCache))

	ctx := context.Background()
	url := srv.URL + "/bg.png"
	for i := 0; i < 3; i++ {
		if _, err := loader.Load(ctx, url); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	if hits != 1 {
		t.Errorf("server hits = %d, want 1 (later loads served from cache)", hits)
	}
}

func TestLoadEmptyRef(t *testing.T) {
	if _, err := NewLoader().Load(context.Background(), ""); !errors.Is(err, errors.ErrCodeAssetLoad) {
		t.Errorf("empty ref error = %v, want ASSET_LOAD", err)
	}
}

func TestLoadUndecodableBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-image.png")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewLoader().Load(context.Background(), path); !errors.Is(err, errors.ErrCodeAssetLoad) {
		t.Errorf("error = %v, want ASSET_LOAD", err)
	}
}

func TestEncodePNGDataURI(t *testing.T) {
	uri := EncodePNGDataURI([]byte{1, 2, 3})
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("uri = %q", uri)
	}

	payload := strings.TrimPrefix(uri, "data:image/png;base64,")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, []byte{1, 2, 3}) {
		t.Errorf("round trip = %v", decoded)
	}
}

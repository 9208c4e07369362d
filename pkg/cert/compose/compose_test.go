package compose

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/fonts"
)

// fakeLoader serves fixed images by reference.
type fakeLoader struct {
	images map[string]image.Image
}

func (f *fakeLoader) Load(_ context.Context, ref string) (image.Image, error) {
	if img, ok := f.images[ref]; ok {
		return img, nil
	}
	return nil, errors.New(errors.ErrCodeAssetLoad, "failed to load image: %s", ref)
}

func solid(w, h int, c color.NRGBA) image.Image {
	return imaging.New(w, h, c)
}

func testDesign() cert.Design {
	return cert.Design{
		Template: cert.CertificateTemplate{
			ID:              "t1",
			Name:            "Award",
			BackgroundImage: "bg",
			Width:           200,
			Height:          150,
		},
		TextElements: []cert.TextElement{{
			ID:         "name",
			Text:       "{{name}}",
			Position:   cert.Position{X: 100, Y: 40},
			FontSize:   20,
			Color:      "#000000",
			FontWeight: cert.WeightNormal,
			FontStyle:  cert.StyleNormal,
			TextAlign:  cert.AlignCenter,
			MaxWidth:   120,
		}},
		ImageElements: []cert.ImageElement{{
			ID:       "logo",
			Src:      "logo",
			Position: cert.Position{X: 10, Y: 10},
			Width:    30,
			Height:   20,
			Type:     cert.ImageLogo,
		}},
	}
}

func testLoader() *fakeLoader {
	return &fakeLoader{images: map[string]image.Image{
		"bg":   solid(50, 50, color.NRGBA{R: 200, G: 200, B: 255, A: 255}),
		"logo": solid(10, 10, color.NRGBA{R: 255, A: 255}),
	}}
}

func TestPreload(t *testing.T) {
	a, err := Preload(context.Background(), testLoader(), testDesign())
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if a.Background == nil {
		t.Error("background not loaded")
	}
	if len(a.Overlays) != 1 {
		t.Fatalf("overlays = %d, want 1", len(a.Overlays))
	}
	if a.Overlays[0].Element.ID != "logo" {
		t.Errorf("overlay element = %q", a.Overlays[0].Element.ID)
	}
}

func TestPreloadMissingAsset(t *testing.T) {
	d := testDesign()
	d.ImageElements[0].Src = "missing"

	_, err := Preload(context.Background(), testLoader(), d)
	if !errors.Is(err, errors.ErrCodeAssetLoad) {
		t.Errorf("error = %v, want ASSET_LOAD", err)
	}
}

func TestRenderProducesPNGAtTemplateSize(t *testing.T) {
	d := testDesign()
	r, err := NewRenderer(d.Template, fonts.NewLibrary())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	rec := cert.Recipient{Name: "Alice", Email: "alice@example.com"}
	data, err := r.Render(context.Background(), a, d.TextElements, &rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Errorf("bounds = %v, want 200x150", b)
	}
}

func TestRenderBackgroundStretched(t *testing.T) {
	d := testDesign()
	d.TextElements = nil
	d.ImageElements = nil

	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	data, err := r.Render(context.Background(), a, nil, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The 50x50 background fills the whole 200x150 canvas: the far corner
	// carries background color, not transparency.
	r8, g8, b8, a8 := img.At(199, 149).RGBA()
	if a8 == 0 {
		t.Error("corner pixel transparent, background not stretched")
	}
	if r8>>8 != 200 || g8>>8 != 200 || b8>>8 != 255 {
		t.Errorf("corner pixel = %d,%d,%d, want background color", r8>>8, g8>>8, b8>>8)
	}
}

func TestRenderOverlayDrawsOverBackground(t *testing.T) {
	d := testDesign()
	d.TextElements = nil

	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	data, err := r.Render(context.Background(), a, nil, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Overlay occupies (10,10)-(40,30); its center must be overlay red.
	r8, g8, _, _ := img.At(25, 20).RGBA()
	if r8>>8 < 200 || g8>>8 > 100 {
		t.Errorf("overlay pixel = r%d g%d, want red overlay", r8>>8, g8>>8)
	}
}

func TestRenderTextChangesPixels(t *testing.T) {
	d := testDesign()

	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	rec := cert.Recipient{Name: "Alice", Email: "alice@example.com"}
	withText, err := r.Render(context.Background(), a, d.TextElements, &rec)
	if err != nil {
		t.Fatalf("Render with text: %v", err)
	}
	withoutText, err := r.Render(context.Background(), a, nil, nil)
	if err != nil {
		t.Fatalf("Render without text: %v", err)
	}

	if bytes.Equal(withText, withoutText) {
		t.Error("text element had no effect on output")
	}
}

func TestRenderSurfaceReuseIsDeterministic(t *testing.T) {
	d := testDesign()

	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	rec := cert.Recipient{Name: "Bob", Email: "bob@example.com"}
	first, err := r.Render(context.Background(), a, d.TextElements, &rec)
	if err != nil {
		t.Fatalf("first Render: %v", err)
	}

	// Render someone else in between; the reused surface must not leak
	// into the repeated render.
	other := cert.Recipient{Name: "A Very Long Certificate Recipient Name", Email: "x@y.com"}
	if _, err := r.Render(context.Background(), a, d.TextElements, &other); err != nil {
		t.Fatalf("interleaved Render: %v", err)
	}

	again, err := r.Render(context.Background(), a, d.TextElements, &rec)
	if err != nil {
		t.Fatalf("repeated Render: %v", err)
	}
	if !bytes.Equal(first, again) {
		t.Error("repeated render differs; surface not fully cleared between renders")
	}
}

func TestRenderBadColorFails(t *testing.T) {
	d := testDesign()
	d.TextElements[0].Color = "blurple"

	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, err := Preload(context.Background(), testLoader(), d)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	rec := cert.Recipient{Name: "Alice", Email: "alice@example.com"}
	if _, err := r.Render(context.Background(), a, d.TextElements, &rec); !errors.Is(err, errors.ErrCodeRender) {
		t.Errorf("error = %v, want RENDER", err)
	}
}

func TestRenderWithoutAssetsFails(t *testing.T) {
	d := testDesign()
	r, err := NewRenderer(d.Template, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	if _, err := r.Render(context.Background(), nil, nil, nil); !errors.Is(err, errors.ErrCodeRender) {
		t.Errorf("error = %v, want RENDER", err)
	}
}

func TestNewRendererInvalidTemplate(t *testing.T) {
	_, err := NewRenderer(cert.CertificateTemplate{Width: 0, Height: 100, BackgroundImage: "bg"}, nil)
	if !errors.Is(err, errors.ErrCodeInvalidDesign) {
		t.Errorf("error = %v, want INVALID_DESIGN", err)
	}
}

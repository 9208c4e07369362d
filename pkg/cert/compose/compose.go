// Package compose renders certificate designs to raster images.
//
// A Renderer owns one pixel surface sized to its template and reuses it
// across renders, which amortizes allocation over a batch. The surface is
// single-writer: a Renderer must not be shared between concurrent batch
// runs (each run constructs its own).
//
// Asset decoding is separated from drawing. Preload resolves the template
// background and every overlay exactly once per batch; Render then only
// draws, so a render can fail for per-recipient reasons (bad color, font
// trouble) but never for asset resolution.
package compose

import (
	"bytes"
	"context"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/layout"
	"github.com/romega/certforge/pkg/cert/placeholder"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/fonts"
	"github.com/romega/certforge/pkg/observability"
)

// topAnchor draws strings with the y coordinate at the top of the glyph
// run, matching the design coordinate convention for text positions.
const topAnchor = 1.0

// Loader resolves an image reference to decoded pixels.
// *assets.Loader satisfies this.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Overlay pairs an image element with its decoded source.
type Overlay struct {
	Element cert.ImageElement
	Image   image.Image
}

// Assets holds the decoded images a design needs, loaded once per batch.
type Assets struct {
	Background image.Image
	Overlays   []Overlay
}

// Preload resolves the design's background and every overlay image.
// Any failure aborts with an ASSET_LOAD error naming the reference; a
// batch must not start with assets it cannot render.
func Preload(ctx context.Context, loader Loader, d cert.Design) (*Assets, error) {
	bg, err := loader.Load(ctx, d.Template.BackgroundImage)
	if err != nil {
		return nil, err
	}

	a := &Assets{Background: bg}
	for _, e := range d.ImageElements {
		img, err := loader.Load(ctx, e.Src)
		if err != nil {
			return nil, err
		}
		a.Overlays = append(a.Overlays, Overlay{Element: e, Image: img})
	}
	return a, nil
}

// Renderer draws certificates for one template onto an owned surface.
type Renderer struct {
	template cert.CertificateTemplate
	fonts    *fonts.Library
	dc       *gg.Context
}

// NewRenderer allocates a render surface matching the template dimensions.
func NewRenderer(tpl cert.CertificateTemplate, lib *fonts.Library) (*Renderer, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if lib == nil {
		lib = fonts.NewLibrary()
	}
	return &Renderer{
		template: tpl,
		fonts:    lib,
		dc:       gg.NewContext(int(tpl.Width), int(tpl.Height)),
	}, nil
}

// Render composites one certificate and returns it PNG-encoded.
//
// When recipient is non-nil, placeholder tokens in every text element are
// substituted with its fields first. The passed element slices are never
// mutated. On failure no partial image is returned.
func (r *Renderer) Render(ctx context.Context, a *Assets, texts []cert.TextElement, recipient *cert.Recipient) ([]byte, error) {
	start := time.Now()
	observability.Render().OnRenderStart(ctx, r.template.ID)

	data, err := r.render(a, texts, recipient)
	observability.Render().OnRenderComplete(ctx, r.template.ID, len(data), time.Since(start), err)
	return data, err
}

func (r *Renderer) render(a *Assets, texts []cert.TextElement, recipient *cert.Recipient) ([]byte, error) {
	if a == nil || a.Background == nil {
		return nil, errors.New(errors.ErrCodeRender, "render called without preloaded assets")
	}

	w, h := int(r.template.Width), int(r.template.Height)

	// Clear to transparent, then stretch the background over the full
	// surface. Aspect ratio is intentionally not preserved.
	r.dc.SetRGBA(0, 0, 0, 0)
	r.dc.Clear()
	r.dc.DrawImage(imaging.Resize(a.Background, w, h, imaging.Lanczos), 0, 0)

	// Overlays draw in list order; later elements cover earlier ones.
	for _, o := range a.Overlays {
		e := o.Element
		scaled := imaging.Resize(o.Image, int(e.Width), int(e.Height), imaging.Lanczos)
		r.dc.DrawImage(scaled, int(e.Position.X), int(e.Position.Y))
	}

	for _, e := range texts {
		text := e.Text
		if recipient != nil {
			text = placeholder.Substitute(text, *recipient)
		}
		if err := r.drawText(e, text); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, r.dc.Image(), imaging.PNG); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "encode certificate png")
	}
	return buf.Bytes(), nil
}

// drawText draws one element's (already substituted) text.
func (r *Renderer) drawText(e cert.TextElement, text string) error {
	col, err := cert.ParseColor(e.Color)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRender, err, "text element %q", e.ID)
	}

	face, err := r.fonts.Face(e.FontFamily, e.FontWeight == cert.WeightBold, e.FontStyle == cert.StyleItalic, e.FontSize)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRender, err, "text element %q", e.ID)
	}

	r.dc.SetFontFace(face)
	r.dc.SetColor(col)

	for i, line := range layout.SplitLines(text) {
		if line == "" {
			continue // empty lines still advance via the line index
		}

		p := layout.Line(e, i, fonts.Measure(face, line), r.template.Width)

		var ax float64
		switch p.Align {
		case cert.AlignCenter:
			ax = 0.5
		case cert.AlignRight:
			ax = 1
		default:
			ax = 0
		}

		if p.ScaleX < 1 {
			// Uniform horizontal compression about the anchor so the
			// rendered width lands exactly on the element's max width.
			r.dc.Push()
			r.dc.ScaleAbout(p.ScaleX, 1, p.DrawX, p.DrawY)
			r.dc.DrawStringAnchored(line, p.DrawX, p.DrawY, ax, topAnchor)
			r.dc.Pop()
			continue
		}

		r.dc.DrawStringAnchored(line, p.DrawX, p.DrawY, ax, topAnchor)
	}
	return nil
}

// Template returns the template this renderer draws.
func (r *Renderer) Template() cert.CertificateTemplate {
	return r.template
}

// Package cert defines the certificate data model shared by the layout,
// compositing, and batch packages.
//
// A certificate design combines a background template with positioned text
// and image elements. All coordinates are expressed in the template's pixel
// space: origin top-left, y increasing downward. The types in this package
// are validated once at the boundary (see Validate methods and the batch
// parser) and treated as immutable by everything downstream.
package cert

import (
	"regexp"

	"github.com/romega/certforge/pkg/errors"
)

// Alignment controls how a text element anchors to its position.
type Alignment string

// Supported text alignments.
const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// FontWeight is the weight of a text element's font.
type FontWeight string

// Supported font weights.
const (
	WeightNormal FontWeight = "normal"
	WeightBold   FontWeight = "bold"
)

// FontStyle is the style of a text element's font.
type FontStyle string

// Supported font styles.
const (
	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// ImageType classifies an image overlay. It has no effect on rendering.
type ImageType string

// Supported image element types.
const (
	ImageSignature ImageType = "signature"
	ImageLogo      ImageType = "logo"
	ImageCustom    ImageType = "custom"
)

// DefaultMaxWidthRatio is the fraction of the template width used as the
// maximum text footprint when an element does not set MaxWidth.
const DefaultMaxWidthRatio = 0.8

// Position is a point in template pixel space, origin top-left.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextElement is a text layer on the certificate.
//
// Position is the anchor point: the left edge for AlignLeft, the right edge
// for AlignRight, and the horizontal midpoint for AlignCenter. Text may
// contain explicit line breaks ("\n") and {{placeholder}} tokens.
type TextElement struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Position   Position   `json:"position"`
	FontSize   float64    `json:"fontSize"`
	FontFamily string     `json:"fontFamily"`
	Color      string     `json:"color"`
	FontWeight FontWeight `json:"fontWeight"`
	FontStyle  FontStyle  `json:"fontStyle"`
	TextAlign  Alignment  `json:"textAlign"`

	// MaxWidth is the maximum horizontal footprint in pixels. Zero means
	// unset, in which case DefaultMaxWidthRatio of the template width applies.
	MaxWidth float64 `json:"maxWidth,omitempty"`
}

// MaxWidthFor returns the effective maximum width for this element on a
// canvas of the given width.
func (e TextElement) MaxWidthFor(canvasWidth float64) float64 {
	if e.MaxWidth > 0 {
		return e.MaxWidth
	}
	return canvasWidth * DefaultMaxWidthRatio
}

// ImageElement is an image overlay (signature, logo, custom).
//
// The source image is scaled to exactly Width x Height, not cropped.
type ImageElement struct {
	ID       string    `json:"id"`
	Src      string    `json:"src"`
	Position Position  `json:"position"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Type     ImageType `json:"type"`
}

// CertificateTemplate is the fixed-size background shared by all
// certificates in a batch. The background image is stretched, not tiled,
// to exactly Width x Height.
type CertificateTemplate struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BackgroundImage string  `json:"backgroundImage"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
}

// Design bundles a template with its elements. This is the unit the CLI
// loads from a design file and the compositor consumes.
type Design struct {
	Template      CertificateTemplate `json:"template"`
	TextElements  []TextElement       `json:"textElements"`
	ImageElements []ImageElement      `json:"imageElements"`
}

// Recipient is one batch-generation target. Recipients are created by the
// batch parser, validated there, and immutable afterwards. One recipient
// produces exactly one rendered certificate.
type Recipient struct {
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Title        string            `json:"title,omitempty"`
	Date         string            `json:"date,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// emailRegex is the basic local@domain.tld shape check applied to
// recipient emails. Full RFC 5322 validation is deliberately out of scope.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s has a basic email shape.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// Validate checks the template's structural invariants.
func (t CertificateTemplate) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidDesign,
			"template dimensions must be positive, got %gx%g", t.Width, t.Height)
	}
	if t.BackgroundImage == "" {
		return errors.New(errors.ErrCodeInvalidDesign, "template has no background image")
	}
	return nil
}

// Validate checks the text element's structural invariants.
func (e TextElement) Validate() error {
	if e.FontSize <= 0 {
		return errors.New(errors.ErrCodeInvalidElement,
			"text element %q: fontSize must be positive, got %g", e.ID, e.FontSize)
	}
	if e.MaxWidth < 0 {
		return errors.New(errors.ErrCodeInvalidElement,
			"text element %q: maxWidth must be positive when set, got %g", e.ID, e.MaxWidth)
	}
	switch e.TextAlign {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return errors.New(errors.ErrCodeInvalidElement,
			"text element %q: invalid textAlign %q", e.ID, e.TextAlign)
	}
	return nil
}

// Validate checks the image element's structural invariants.
func (e ImageElement) Validate() error {
	if e.Width <= 0 || e.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidElement,
			"image element %q: dimensions must be positive, got %gx%g", e.ID, e.Width, e.Height)
	}
	if e.Src == "" {
		return errors.New(errors.ErrCodeInvalidElement, "image element %q: missing src", e.ID)
	}
	return nil
}

// Validate checks the whole design: template plus every element.
func (d Design) Validate() error {
	if err := d.Template.Validate(); err != nil {
		return err
	}
	for _, e := range d.TextElements {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range d.ImageElements {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

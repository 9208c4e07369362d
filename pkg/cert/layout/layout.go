// Package layout computes draw positions and fit scaling for certificate
// text elements.
//
// The engine is pure: it takes a measured line width and produces the draw
// anchor and a horizontal scale factor. Measuring happens in the compositor
// where the font face lives; keeping measurement out of this package makes
// the alignment and auto-fit rules trivially testable.
//
// # Alignment semantics
//
// For left and right alignment the element position is the respective text
// edge and overflow is permitted. For center alignment the position is the
// horizontal midpoint the text must straddle; when the measured width
// exceeds the element's maximum width the glyph run is uniformly compressed
// about that midpoint so the rendered width equals the maximum exactly.
// Vertical size and stroke weight are never affected by the compression.
package layout

import "github.com/romega/certforge/pkg/cert"

// LineSpacing is the fixed line-height multiplier for multi-line text.
const LineSpacing = 1.2

// Placement describes where and how one line of text is drawn.
type Placement struct {
	// DrawX is the horizontal anchor: left edge, midpoint, or right edge
	// depending on the element's alignment.
	DrawX float64

	// DrawY is the top of the line in canvas coordinates.
	DrawY float64

	// ScaleX is the uniform horizontal scale applied about the anchor.
	// 1 means no compression. Always in (0, 1].
	ScaleX float64

	// Align is the element's alignment, carried through for the renderer.
	Align cert.Alignment
}

// Line lays out a single line of an element's text.
//
// measuredWidth is the unscaled width of the line in pixels as measured with
// the element's font. lineIndex selects the vertical offset: line i sits at
// position.y + i * fontSize * LineSpacing. canvasWidth supplies the default
// maximum width when the element does not set one.
func Line(e cert.TextElement, lineIndex int, measuredWidth, canvasWidth float64) Placement {
	p := Placement{
		DrawX:  e.Position.X,
		DrawY:  e.Position.Y + float64(lineIndex)*e.FontSize*LineSpacing,
		ScaleX: 1,
		Align:  e.TextAlign,
	}

	// Only center-aligned text auto-fits. Left/right elements grow past
	// their maximum width unscaled.
	if e.TextAlign != cert.AlignCenter {
		return p
	}
	if measuredWidth <= 0 {
		return p
	}

	if maxWidth := e.MaxWidthFor(canvasWidth); measuredWidth > maxWidth {
		p.ScaleX = maxWidth / measuredWidth
	}
	return p
}

// SplitLines breaks element text into lines on explicit "\n" breaks.
// A trailing newline produces a final empty line, which draws nothing but
// still occupies vertical space.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	return append(lines, text[start:])
}

package cert

import (
	"image/color"
	"strings"

	"github.com/romega/certforge/pkg/errors"
)

// namedColors covers the CSS color names the certificate editor offers.
// Anything else must be given in hex form.
var namedColors = map[string]color.RGBA{
	"black":   {0x00, 0x00, 0x00, 0xff},
	"white":   {0xff, 0xff, 0xff, 0xff},
	"red":     {0xff, 0x00, 0x00, 0xff},
	"green":   {0x00, 0x80, 0x00, 0xff},
	"blue":    {0x00, 0x00, 0xff, 0xff},
	"yellow":  {0xff, 0xff, 0x00, 0xff},
	"orange":  {0xff, 0xa5, 0x00, 0xff},
	"purple":  {0x80, 0x00, 0x80, 0xff},
	"gray":    {0x80, 0x80, 0x80, 0xff},
	"grey":    {0x80, 0x80, 0x80, 0xff},
	"silver":  {0xc0, 0xc0, 0xc0, 0xff},
	"maroon":  {0x80, 0x00, 0x00, 0xff},
	"navy":    {0x00, 0x00, 0x80, 0xff},
	"teal":    {0x00, 0x80, 0x80, 0xff},
	"olive":   {0x80, 0x80, 0x00, 0xff},
	"gold":    {0xff, 0xd7, 0x00, 0xff},
	"crimson": {0xdc, 0x14, 0x3c, 0xff},
}

// ParseColor parses a CSS-style color value: "#RGB", "#RRGGBB", "#RRGGBBAA"
// (leading '#' optional) or one of the supported color names.
func ParseColor(s string) (color.RGBA, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[name]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(name, "#")
	switch len(hex) {
	case 3:
		r, okR := hexNibble(hex[0])
		g, okG := hexNibble(hex[1])
		b, okB := hexNibble(hex[2])
		if okR && okG && okB {
			return color.RGBA{r * 17, g * 17, b * 17, 0xff}, nil
		}
	case 6:
		if rgb, ok := hexBytes(hex); ok {
			return color.RGBA{rgb[0], rgb[1], rgb[2], 0xff}, nil
		}
	case 8:
		if rgba, ok := hexBytes(hex); ok {
			return color.RGBA{rgba[0], rgba[1], rgba[2], rgba[3]}, nil
		}
	}

	return color.RGBA{}, errors.New(errors.ErrCodeInvalidColor, "unrecognized color %q", s)
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func hexBytes(s string) ([]uint8, bool) {
	out := make([]uint8, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		hi, okHi := hexNibble(s[i])
		lo, okLo := hexNibble(s[i+1])
		if !okHi || !okLo {
			return nil, false
		}
		out = append(out, hi<<4|lo)
	}
	return out, true
}

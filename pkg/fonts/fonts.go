// Package fonts resolves font families to renderable faces.
//
// Resolution order for a (family, bold, italic) request:
//  1. A system font located via go-findfont whose name matches the family
//     and variant (e.g. "Georgia Bold Italic").
//  2. The embedded Go fonts from golang.org/x/image/font/gofont as a
//     fallback, so rendering works on hosts with no matching system font.
//
// Parsed fonts and sized faces are cached; a Library is safe for use from
// a single render loop and guarded for concurrent lookups.
package fonts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/romega/certforge/pkg/errors"
)

// fontKey identifies a parsed font variant.
type fontKey struct {
	family string
	bold   bool
	italic bool
}

// faceKey identifies a sized face.
type faceKey struct {
	fontKey
	size float64
}

// Library caches parsed fonts and sized faces.
type Library struct {
	mu    sync.Mutex
	dirs  []string
	fonts map[fontKey]*truetype.Font
	faces map[faceKey]font.Face
}

// Option configures a Library.
type Option func(*Library)

// WithDirs adds directories searched for TTF files before the system font
// locations.
func WithDirs(dirs ...string) Option {
	return func(l *Library) { l.dirs = append(l.dirs, dirs...) }
}

// NewLibrary creates an empty font library.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		fonts: make(map[fontKey]*truetype.Font),
		faces: make(map[faceKey]font.Face),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Face returns a face for the family at the given pixel size.
// Size is interpreted at 72 DPI so one point equals one pixel, matching the
// px-based font sizes in certificate designs.
func (l *Library) Face(family string, bold, italic bool, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, errors.New(errors.ErrCodeFontLoad, "font size must be positive, got %g", size)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fk := fontKey{family: strings.ToLower(strings.TrimSpace(family)), bold: bold, italic: italic}
	key := faceKey{fontKey: fk, size: size}
	if face, ok := l.faces[key]; ok {
		return face, nil
	}

	f, err := l.font(fk)
	if err != nil {
		return nil, err
	}

	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	l.faces[key] = face
	return face, nil
}

// font returns the parsed font for a variant, loading it on first use.
// Callers must hold l.mu.
func (l *Library) font(fk fontKey) (*truetype.Font, error) {
	if f, ok := l.fonts[fk]; ok {
		return f, nil
	}

	f := l.locate(fk)
	if f == nil {
		var err error
		f, err = fallbackFont(fk.bold, fk.italic)
		if err != nil {
			return nil, err
		}
	}

	l.fonts[fk] = f
	return f, nil
}

// locate tries to find and parse a matching system font.
// Returns nil when nothing usable is found; the caller falls back.
func (l *Library) locate(fk fontKey) *truetype.Font {
	if fk.family == "" {
		return nil
	}
	for _, query := range queries(fk) {
		if f := l.fromDirs(query); f != nil {
			return f
		}
		path, err := findfont.Find(query)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// Not every located file is a parseable TTF (e.g. .ttc bundles).
		if f, err := truetype.Parse(data); err == nil {
			return f
		}
	}
	return nil
}

// fromDirs checks the configured extra directories for a file matching the
// query, ignoring case and spaces the way findfont does.
func (l *Library) fromDirs(query string) *truetype.Font {
	want := normalizeFontName(query)
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || normalizeFontName(entry.Name()) != want {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			if f, err := truetype.Parse(data); err == nil {
				return f
			}
		}
	}
	return nil
}

func normalizeFontName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}

// queries builds findfont search strings from most to least specific.
func queries(fk fontKey) []string {
	variant := ""
	switch {
	case fk.bold && fk.italic:
		variant = " bold italic"
	case fk.bold:
		variant = " bold"
	case fk.italic:
		variant = " italic"
	}

	qs := []string{fk.family + variant + ".ttf"}
	if variant != "" {
		qs = append(qs, fk.family+".ttf")
	}
	return qs
}

// fallbackFont parses the embedded Go font matching the requested variant.
func fallbackFont(bold, italic bool) (*truetype.Font, error) {
	var data []byte
	switch {
	case bold && italic:
		data = gobolditalic.TTF
	case bold:
		data = gobold.TTF
	case italic:
		data = goitalic.TTF
	default:
		data = goregular.TTF
	}

	f, err := truetype.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontLoad, err, "parse embedded fallback font")
	}
	return f, nil
}

// Measure returns the advance width of s in pixels when drawn with face.
func Measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s)) / 64
}

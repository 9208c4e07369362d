package cert

import (
	"encoding/json"
	"os"

	"github.com/romega/certforge/pkg/errors"
)

// ParseDesign decodes a design document from JSON and validates it.
// Missing optional fields get their defaults: textAlign "left", fontWeight
// "normal", fontStyle "normal", color black.
func ParseDesign(data []byte) (Design, error) {
	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return Design{}, errors.Wrap(errors.ErrCodeInvalidDesign, err, "design is not valid JSON")
	}
	for i := range d.TextElements {
		applyTextDefaults(&d.TextElements[i])
	}
	for i := range d.ImageElements {
		if d.ImageElements[i].Type == "" {
			d.ImageElements[i].Type = ImageCustom
		}
	}
	if err := d.Validate(); err != nil {
		return Design{}, err
	}
	return d, nil
}

// LoadDesign reads and parses a design file from disk.
func LoadDesign(path string) (Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Design{}, errors.Wrap(errors.ErrCodeInvalidDesign, err, "read design file %s", path)
	}
	return ParseDesign(data)
}

// MarshalDesign encodes a design document as indented JSON.
func MarshalDesign(d Design) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func applyTextDefaults(e *TextElement) {
	if e.TextAlign == "" {
		e.TextAlign = AlignLeft
	}
	if e.FontWeight == "" {
		e.FontWeight = WeightNormal
	}
	if e.FontStyle == "" {
		e.FontStyle = StyleNormal
	}
	if e.Color == "" {
		e.Color = "#000000"
	}
}

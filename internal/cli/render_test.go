package cli

import (
	"encoding/json"
	"testing"

	"github.com/romega/certforge/pkg/batch"
	"github.com/romega/certforge/pkg/cert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace", "Ada_Lovelace"},
		{"  Grace Hopper  ", "Grace_Hopper"},
		{"a/b\\c:d", "a_b_c_d"},
		{`x*y?z"w<v>u|t`, "x_y_z_w_v_u_t"},
		{"...", ""},
		{"", ""},
		{"Jörg Müller", "Jörg_Müller"},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCertificateFilename(t *testing.T) {
	if got := certificateFilename("Ada Lovelace"); got != "Ada_Lovelace.png" {
		t.Errorf("got %q", got)
	}
	if got := certificateFilename(""); got != "certificate.png" {
		t.Errorf("empty name got %q", got)
	}
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"company=Acme", "team=Platform Eng"})
	if err != nil {
		t.Fatalf("parseFields: %v", err)
	}
	if fields["company"] != "Acme" || fields["team"] != "Platform Eng" {
		t.Errorf("fields = %v", fields)
	}

	if _, err := parseFields([]string{"novalue"}); err == nil {
		t.Error("expected error for missing =")
	}
	if _, err := parseFields([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}

	fields, err = parseFields(nil)
	if err != nil || fields != nil {
		t.Errorf("parseFields(nil) = %v, %v", fields, err)
	}
}

func TestExampleDesignIsValid(t *testing.T) {
	design, err := cert.ParseDesign([]byte(exampleDesign))
	if err != nil {
		t.Fatalf("ParseDesign: %v", err)
	}
	if err := design.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(design.TextElements) != 2 || len(design.ImageElements) != 1 {
		t.Errorf("elements = %d/%d", len(design.TextElements), len(design.ImageElements))
	}
}

func TestExampleRecipientsIsValid(t *testing.T) {
	recipients, err := batch.ParseRecipients([]byte(exampleRecipients))
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	if len(recipients) != 2 {
		t.Errorf("len = %d, want 2", len(recipients))
	}
	if recipients[1].CustomFields["company"] != "Navy" {
		t.Errorf("customFields = %v", recipients[1].CustomFields)
	}

	// The samples must stay plain JSON so they can be piped to files.
	if !json.Valid([]byte(exampleRecipients)) || !json.Valid([]byte(exampleDesign)) {
		t.Error("examples must be valid JSON")
	}
}

func TestDecodePNGDataURI(t *testing.T) {
	if _, err := decodePNGDataURI("data:image/jpeg;base64,abcd"); err == nil {
		t.Error("expected error for non-png uri")
	}
	data, err := decodePNGDataURI("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
}

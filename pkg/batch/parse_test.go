package batch

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/errors"
)

func TestParseRecipients(t *testing.T) {
	data := []byte(`{
		"recipients": [
			{"name": "Alice", "email": "alice@example.com", "title": "Go 101", "date": "2026-08-01"},
			{"name": "Bob", "email": "bob@example.com", "customFields": {"company": "Acme"}}
		]
	}`)

	recipients, err := ParseRecipients(data)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("len = %d, want 2", len(recipients))
	}
	if recipients[0].Title != "Go 101" {
		t.Errorf("title = %q", recipients[0].Title)
	}
	if recipients[1].Title != "" || recipients[1].Date != "" {
		t.Errorf("optional fields should default empty, got %+v", recipients[1])
	}
	if recipients[1].CustomFields["company"] != "Acme" {
		t.Errorf("customFields = %v", recipients[1].CustomFields)
	}
	if recipients[0].CustomFields == nil {
		t.Error("customFields should default to an empty map")
	}
}

func TestParseRecipientsRoundTrip(t *testing.T) {
	want := []cert.Recipient{
		{
			Name:         "Ada Lovelace",
			Email:        "ada@example.com",
			Title:        "Advanced Go Workshop",
			Date:         "2026-08-28",
			CustomFields: map[string]string{"company": "Navy"},
		},
		{
			Name:         "Grace Hopper",
			Email:        "grace@example.com",
			CustomFields: map[string]string{},
		},
	}

	data, err := json.Marshal(recipientFile{Recipients: want})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ParseRecipients(data)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip\n got %+v\nwant %+v", got, want)
	}
}

func TestParseRecipientsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.Code
		want string
	}{
		{
			name: "not json",
			data: `Alice, alice@example.com`,
			code: errors.ErrCodeInvalidFormat,
		},
		{
			name: "missing recipients key",
			data: `{"people": []}`,
			code: errors.ErrCodeInvalidFormat,
		},
		{
			name: "empty recipients",
			data: `{"recipients": []}`,
			code: errors.ErrCodeInvalidFormat,
		},
		{
			name: "missing name",
			data: `{"recipients": [{"email": "a@b.com"}]}`,
			code: errors.ErrCodeInvalidRecipient,
			want: "recipient 1: missing name",
		},
		{
			name: "invalid email",
			data: `{"recipients": [{"name": "Alice", "email": "not-an-email"}]}`,
			code: errors.ErrCodeInvalidRecipient,
			want: `recipient 1 (Alice): invalid email "not-an-email"`,
		},
		{
			name: "missing email",
			data: `{"recipients": [{"name": "Alice"}]}`,
			code: errors.ErrCodeInvalidRecipient,
			want: "recipient 1 (Alice): missing email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecipients([]byte(tt.data))
			if !errors.Is(err, tt.code) {
				t.Fatalf("error = %v, want code %s", err, tt.code)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestParseRecipientsWholeFileRejected(t *testing.T) {
	data := []byte(`{"recipients": [
		{"name": "Alice", "email": "alice@example.com"},
		{"name": "", "email": "b@example.com"},
		{"name": "Carol", "email": "carol"}
	]}`)

	_, err := ParseRecipients(data)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"2 invalid entries", "recipient 2", "recipient 3"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err, want)
		}
	}
}

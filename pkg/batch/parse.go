// Package batch parses recipient lists and orchestrates certificate
// generation runs: render each recipient's certificate, hand the result to
// a delivery sink, and report progress along the way.
package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/errors"
)

// recipientFile is the on-disk shape of a recipient list.
type recipientFile struct {
	Recipients []cert.Recipient `json:"recipients"`
}

// ParseRecipients parses a recipient list from JSON.
//
// The document must be an object with a non-empty "recipients" array. The
// whole file is rejected when any entry is invalid; the error lists every
// offending entry by position so the operator can fix the file in one pass.
// Title and date default to empty strings and custom fields to an empty map.
func ParseRecipients(data []byte) ([]cert.Recipient, error) {
	var file recipientFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse recipient file")
	}
	if file.Recipients == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, `recipient file must contain a "recipients" array`)
	}
	if len(file.Recipients) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "recipient file contains no recipients")
	}

	var problems []string
	for i, r := range file.Recipients {
		if strings.TrimSpace(r.Name) == "" {
			problems = append(problems, fmt.Sprintf("recipient %d: missing name", i+1))
		}
		if r.Email == "" {
			problems = append(problems, fmt.Sprintf("recipient %d (%s): missing email", i+1, r.Name))
		} else if !cert.ValidEmail(r.Email) {
			problems = append(problems, fmt.Sprintf("recipient %d (%s): invalid email %q", i+1, r.Name, r.Email))
		}
	}
	if len(problems) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidRecipient,
			"recipient file has %d invalid entries:\n  %s", len(problems), strings.Join(problems, "\n  "))
	}

	recipients := make([]cert.Recipient, len(file.Recipients))
	for i, r := range file.Recipients {
		if r.CustomFields == nil {
			r.CustomFields = map[string]string{}
		}
		recipients[i] = r
	}
	return recipients, nil
}

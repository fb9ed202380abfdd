package domain

import (
	"github.com/gabriel-vasile/mimetype"

	"voynich/errors"
)

// Attachment is a binary payload carried by a message. Either all three
// fields are present or the attachment is absent entirely; a partially
// populated attachment is rejected before anything is persisted.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// Validate enforces the all-or-none rule and cross-checks the declared media
// type against the sniffed content. A declared type that does not match the
// payload counts as malformed.
func (a *Attachment) Validate() error {
	if a == nil {
		return nil
	}
	if a.Name == "" || a.MediaType == "" || len(a.Data) == 0 {
		return errors.ErrMalformedAttachment
	}
	if !mimetype.Detect(a.Data).Is(a.MediaType) {
		return errors.ErrMalformedAttachment
	}
	return nil
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "voynich/errors"
)

// Smallest valid PNG header, enough for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestAttachment_Validate(t *testing.T) {
	tests := []struct {
		name       string
		attachment *Attachment
		wantErr    bool
	}{
		{name: "absent attachment is valid", attachment: nil},
		{
			name:       "complete and consistent",
			attachment: &Attachment{Name: "pic.png", MediaType: "image/png", Data: pngHeader},
		},
		{
			name:       "plain text",
			attachment: &Attachment{Name: "notes.txt", MediaType: "text/plain; charset=utf-8", Data: []byte("hello")},
		},
		{
			name:       "missing data",
			attachment: &Attachment{Name: "pic.png", MediaType: "image/png"},
			wantErr:    true,
		},
		{
			name:       "missing name",
			attachment: &Attachment{MediaType: "image/png", Data: pngHeader},
			wantErr:    true,
		},
		{
			name:       "missing media type",
			attachment: &Attachment{Name: "pic.png", Data: pngHeader},
			wantErr:    true,
		},
		{
			name:       "declared type contradicts content",
			attachment: &Attachment{Name: "pic.png", MediaType: "image/png", Data: []byte("just text")},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attachment.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, apperrors.ErrMalformedAttachment)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

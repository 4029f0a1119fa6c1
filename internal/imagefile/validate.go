// Package imagefile holds the attachment policy shared by the dialog and the
// per-row upload, and the locally owned preview resources built from
// selected files.
package imagefile

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/todoflow-labs/web-client/internal/dto"
)

// MaxSize is the largest accepted attachment, in bytes.
const MaxSize = 5 * 1024 * 1024

var AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var (
	ErrInvalidType = errors.New("Invalid file type. Please upload a JPEG, PNG, GIF, or WebP image.")
	ErrTooLarge    = errors.New("File size must be less than 5MB.")
	ErrEmpty       = errors.New("File is empty.")
)

// Validate applies the attachment policy. Nothing that fails here may reach
// the network.
func Validate(img dto.Image) error {
	if !allowed(ContentType(img)) {
		return ErrInvalidType
	}
	if img.Size() > MaxSize {
		return fmt.Errorf("%w (%d bytes)", ErrTooLarge, img.Size())
	}
	if img.Size() == 0 {
		return ErrEmpty
	}
	return nil
}

// ContentType returns the declared type, sniffing the bytes when none was given.
func ContentType(img dto.Image) string {
	ct := strings.TrimSpace(img.ContentType)
	if ct == "" && len(img.Data) > 0 {
		ct = http.DetectContentType(img.Data)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.ToLower(ct)
}

func allowed(ct string) bool {
	for _, t := range AllowedTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Reason returns the user-facing policy message behind a Validate error.
func Reason(err error) string {
	for _, known := range []error{ErrInvalidType, ErrTooLarge, ErrEmpty} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

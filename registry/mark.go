package registry

import (
	"fmt"

	"github.com/0xSardius/castmark/errors"
)

// Byte-length bounds for caller-supplied fields. Lengths are measured in
// bytes, not runes.
const (
	MaxIdentifierLen = 64
	MaxNameLen       = 128
	MaxURLLen        = 256
)

// Principal is an opaque authenticated caller identity supplied by an
// external identity layer. The registry never interprets it beyond equality.
type Principal string

// Mark is the metadata record stored under a MarkKey.
//
// Exists distinguishes active marks from soft-removed ones: a removed mark
// keeps its key reserved forever and retains its last owner, but GetMark no
// longer returns it.
type Mark struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Owner     Principal `json:"owner"`
	UpdatedAt int64     `json:"updated_at"` // Unix milliseconds
	Exists    bool      `json:"exists"`
}

// validateIdentifier checks the identifier byte-length bound.
func validateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier is empty: %w", errors.ErrInvalidInput)
	}
	if len(identifier) > MaxIdentifierLen {
		return fmt.Errorf("identifier is %d bytes, maximum is %d: %w",
			len(identifier), MaxIdentifierLen, errors.ErrInvalidInput)
	}
	return nil
}

// validateFields checks the name and url byte-length bounds.
func validateFields(name, url string) error {
	if name == "" {
		return fmt.Errorf("name is empty: %w", errors.ErrInvalidInput)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name is %d bytes, maximum is %d: %w",
			len(name), MaxNameLen, errors.ErrInvalidInput)
	}
	if url == "" {
		return fmt.Errorf("url is empty: %w", errors.ErrInvalidInput)
	}
	if len(url) > MaxURLLen {
		return fmt.Errorf("url is %d bytes, maximum is %d: %w",
			len(url), MaxURLLen, errors.ErrInvalidInput)
	}
	return nil
}

// validatePrincipal checks that a principal is present.
func validatePrincipal(p Principal, role string) error {
	if p == "" {
		return fmt.Errorf("%s principal is empty: %w", role, errors.ErrInvalidInput)
	}
	return nil
}

package journal

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPersistenceIDLength is the maximum length of a persistence ID, in bytes.
const MaxPersistenceIDLength = 255

// ValidatePersistenceID returns an error if id is not a valid persistence ID.
func ValidatePersistenceID(id string) error {
	if id == "" {
		return errors.New("persistence ID must not be empty")
	}

	if len(id) > MaxPersistenceIDLength {
		return errors.New("persistence ID must not be longer than 255 bytes")
	}

	if !utf8.ValidString(id) {
		return errors.New("persistence ID must be valid UTF-8")
	}

	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return errors.New("persistence ID must not contain control characters")
		}
	}

	if strings.TrimFunc(id, unicode.IsSpace) == "" {
		return errors.New("persistence ID must not consist entirely of whitespace")
	}

	return nil
}

package validation

import (
	"path/filepath"
	"strings"
)

// ValidateFileName accepts only a single, non-hidden path element so a
// request can never address anything outside the storage directory.
func ValidateFileName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidFileName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return ErrInvalidFileName
	}
	if strings.HasPrefix(name, ".") {
		return ErrInvalidFileName
	}
	if filepath.Base(name) != name {
		return ErrInvalidFileName
	}
	return nil
}

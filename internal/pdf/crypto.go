package pdf

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// IsEncrypted checks if a PDF file is encrypted/password-protected.
func IsEncrypted(filename string) (bool, error) {
	// Page counting fails on encrypted files when no password is known.
	_, err := api.PageCountFile(filename)
	if err != nil {
		if IsPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
	}
	return false, nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

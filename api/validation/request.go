package validation

import (
	"net/url"
	"strings"

	"mediaFetcher/api/models"
)

const (
	maxTargetLength     = 2048
	maxCredentialLength = 1 << 20
)

// ValidateTarget trims the target and checks it is an absolute http(s) URL.
func ValidateTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrMissingTarget
	}
	if len(target) > maxTargetLength {
		return "", ErrTargetTooLong
	}
	if strings.ContainsAny(target, "\r\n\t ") {
		return "", ErrInvalidTarget
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", ErrInvalidTarget
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", ErrInvalidTarget
	}

	return target, nil
}

func ValidateOutputKind(kind string) (models.OutputKind, error) {
	k, ok := models.ParseOutputKind(kind)
	if !ok {
		return "", ErrInvalidOutputKind
	}
	return k, nil
}

func ValidateCredential(credential string) error {
	if len(credential) > maxCredentialLength {
		return ErrCredentialTooLarge
	}
	return nil
}

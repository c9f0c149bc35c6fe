package validation

import "errors"

var (
	ErrMissingTarget      = errors.New("target is required")
	ErrInvalidTarget      = errors.New("target is not a valid URL")
	ErrTargetTooLong      = errors.New("target exceeds 2048 characters")
	ErrInvalidOutputKind  = errors.New("output_kind must be one of audio, video, mp3, mp4")
	ErrCredentialTooLarge = errors.New("credential exceeds 1MB limit")
	ErrInvalidFileName    = errors.New("invalid file name")
)

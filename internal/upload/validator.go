package upload

import (
	"errors"
	"mime/multipart"
	"strings"
)

var (
	ErrNoFile             = errors.New("no file sent")
	ErrEmptyFilename      = errors.New("no file selected")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file too large")
)

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
}

// AllowedFile reports whether the extension after the last dot is an
// accepted image type, ignoring case.
func AllowedFile(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

// Validator checks an uploaded file header before anything touches the disk.
type Validator struct {
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// Validate returns the sanitized filename to store the upload under.
func (v *Validator) Validate(header *multipart.FileHeader) (string, error) {
	if header == nil {
		return "", ErrNoFile
	}
	if header.Filename == "" {
		return "", ErrEmptyFilename
	}
	if !AllowedFile(header.Filename) {
		return "", ErrFileTypeNotAllowed
	}
	if v.maxBytes > 0 && header.Size > v.maxBytes {
		return "", ErrFileTooLarge
	}

	name := SanitizeFilename(header.Filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	return name, nil
}

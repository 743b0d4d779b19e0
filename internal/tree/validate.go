package tree

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidInput is matched by every FieldError.
var ErrInvalidInput = errors.New("invalid input")

// FieldError is a form validation failure. No request is made when one is
// returned.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func requireTitle(title string) error {
	if title == "" {
		return &FieldError{Field: "title", Reason: "title is required"}
	}
	return nil
}

// ValidateVideoURL accepts an empty string or an absolute http(s) URL.
func ValidateVideoURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &FieldError{Field: "video_url", Reason: "video URL must be an http or https link"}
	}
	return nil
}

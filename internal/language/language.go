package language

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Code is a validated language code passed to the transcription stage.
type Code string

const (
	English Code = "en"
	Chinese Code = "zh"
)

// ErrUnsupported is returned for codes outside the supported set.
var ErrUnsupported = errors.New("unsupported language")

var supported = []Code{English, Chinese}

// Supported lists the accepted codes in display order.
func Supported() []Code {
	return append([]Code(nil), supported...)
}

// Parse normalizes raw and returns the matching Code.
func Parse(raw string) (Code, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, code := range supported {
		if normalized == string(code) {
			return code, nil
		}
	}
	if normalized == "" {
		return "", fmt.Errorf("%w: language code is empty (expected %s)", ErrUnsupported, supportedList())
	}
	if tag, err := language.Parse(normalized); err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			return "", fmt.Errorf("%w: %s (%s) is not supported (expected %s)", ErrUnsupported, name, normalized, supportedList())
		}
	}
	return "", fmt.Errorf("%w: %q (expected %s)", ErrUnsupported, raw, supportedList())
}

// Tag returns the BCP 47 tag for the code.
func (c Code) Tag() language.Tag {
	return language.Make(string(c))
}

// DisplayName returns the English name of the language, e.g. "Chinese".
func (c Code) DisplayName() string {
	if name := display.English.Tags().Name(c.Tag()); name != "" {
		return name
	}
	return string(c)
}

// SelfName returns the language's name in itself, e.g. "中文".
func (c Code) SelfName() string {
	if name := display.Self.Name(c.Tag()); name != "" {
		return name
	}
	return string(c)
}

func (c Code) String() string {
	return string(c)
}

func supportedList() string {
	parts := make([]string, len(supported))
	for i, code := range supported {
		parts[i] = string(code)
	}
	return strings.Join(parts, ", ")
}

// Package document defines the canonical shapes a generated artifact may
// take and the validation rules applied at the model boundary.
//
// A Document is a tagged union with three variants, discriminated by Kind:
// a full standalone page, a snippet (html/css/js fragments mounted by the
// rendering runtime), or an error placeholder the presentation layer can
// render as a friendly fallback.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the document union.
type Kind string

const (
	KindPage    Kind = "page"
	KindSnippet Kind = "snippet"
	KindError   Kind = "error"
)

// Background holds optional snippet backdrop styling.
type Background struct {
	Style string `json:"style,omitempty"`
	Class string `json:"class,omitempty"`
}

// Document is one generated artifact. Exactly one variant's required fields
// are populated according to Kind; metadata fields are common to all.
type Document struct {
	Kind Kind `json:"kind"`

	// Page and snippet content.
	HTML string `json:"html,omitempty"`

	// Snippet-only content.
	CSS        string      `json:"css,omitempty"`
	JS         string      `json:"js,omitempty"`
	Background *Background `json:"background,omitempty"`

	// Error variant.
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`

	// Metadata stamped post-generation.
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Seed      int64  `json:"seed,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"` // unix milliseconds, FIFO ordering key
}

// Categories is the fixed rotation list. Order matters: the rotation
// counter walks it cyclically so consecutive generations never repeat a
// category until the list wraps.
var Categories = []string{
	"game",
	"tool",
	"generative art",
	"simulation",
	"quiz",
	"data visualization",
	"toy",
	"puzzle",
}

// NewError builds an error-variant document.
func NewError(msg string, code int) *Document {
	return &Document{Kind: KindError, Error: msg, Code: code, CreatedAt: time.Now().UnixMilli()}
}

// IsError reports whether d is the error variant.
func (d *Document) IsError() bool { return d != nil && d.Kind == KindError }

// Validate checks that the variant named by Kind carries its required fields.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	switch d.Kind {
	case KindPage:
		if strings.TrimSpace(d.HTML) == "" {
			return fmt.Errorf("%w: page without html", ErrInvalidDocument)
		}
	case KindSnippet:
		if strings.TrimSpace(d.HTML) == "" && strings.TrimSpace(d.CSS) == "" && strings.TrimSpace(d.JS) == "" {
			return fmt.Errorf("%w: snippet without content", ErrInvalidDocument)
		}
	case KindError:
		if d.Error == "" {
			return fmt.Errorf("%w: error variant without message", ErrInvalidDocument)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrUnknownShape, d.Kind)
	}
	return nil
}

// Normalize converts loose provider JSON into a Document. Objects carrying
// an explicit "kind" are taken at face value (then validated); otherwise the
// shape is classified structurally: an "error" key makes the error variant,
// css/js/background keys make a snippet, a lone "html" key makes a
// full page. Anything else is rejected at this boundary rather than passed
// through.
func Normalize(raw []byte) (*Document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}

	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}

	if d.Kind == "" {
		switch {
		case hasKey(probe, "error"):
			d.Kind = KindError
		case hasKey(probe, "css") || hasKey(probe, "js") || hasKey(probe, "background"):
			d.Kind = KindSnippet
		case hasKey(probe, "html"):
			d.Kind = KindPage
		default:
			return nil, fmt.Errorf("%w: no recognizable fields", ErrUnknownShape)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	v, ok := m[key]
	return ok && string(v) != "null"
}

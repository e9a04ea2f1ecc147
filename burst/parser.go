// Package burst extracts complete JSON objects from an incrementally
// arriving, possibly malformed text stream.
//
// Upstream providers stream a JSON array of documents chunk by chunk and
// routinely truncate it mid-object or omit the closing bracket entirely.
// The parser emits each top-level object the moment its closing brace
// arrives, so the first document of a burst is usable long before the
// stream ends.
package burst

import "encoding/json"

// Parser accumulates stream chunks and yields complete top-level JSON
// objects. Not safe for concurrent use; one parser per stream.
type Parser struct {
	buf      []byte
	stripped bool // leading '[' already removed
}

// New returns an empty Parser.
func New() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns every top-level object completed by it,
// in stream order. Brace-balanced spans that fail to parse as a JSON object
// are discarded, not retried: balance alone does not guarantee valid JSON.
//
// Only the unconsumed suffix after the last closed object is retained, so
// already-emitted objects are never re-scanned and memory stays bounded by
// the size of one in-flight object.
func (p *Parser) Feed(chunk string) [][]byte {
	p.buf = append(p.buf, chunk...)
	p.stripLeadingBracket()

	var (
		out      [][]byte
		depth    int
		inString bool
		escaped  bool
		start    = -1
		consumed int
	)

	for i := 0; i < len(p.buf); i++ {
		c := p.buf[i]

		// Inside a string literal braces are content, not structure.
		// A backslash escapes the next byte, so \" does not end the string.
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray close, ignore
			}
			depth--
			if depth == 0 && start >= 0 {
				span := p.buf[start : i+1]
				if obj := validObject(span); obj != nil {
					out = append(out, obj)
				}
				consumed = i + 1
				start = -1
			}
		}
	}

	if consumed > 0 {
		p.buf = append([]byte(nil), p.buf[consumed:]...)
	}
	return out
}

// Pending returns the number of buffered bytes not yet consumed. Useful for
// logging truncated streams.
func (p *Parser) Pending() int {
	return len(p.buf)
}

// stripLeadingBracket drops the array opener once, as soon as the first
// non-space byte arrives. The closing ']' is never looked for — truncated
// arrays are the norm, not the exception.
func (p *Parser) stripLeadingBracket() {
	if p.stripped {
		return
	}
	for i := 0; i < len(p.buf); i++ {
		switch p.buf[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			p.buf = append(p.buf[:i], p.buf[i+1:]...)
			p.stripped = true
			return
		default:
			p.stripped = true
			return
		}
	}
}

// validObject parses span as a JSON object and returns a copy of the raw
// bytes, or nil if the span is not a valid object.
func validObject(span []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(span, &m); err != nil {
		return nil
	}
	return append([]byte(nil), span...)
}

package dedupe

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/lesprgm/Roulette-sub000/document"
)

// Fingerprint reduces a document to a structural signature (hex-encoded
// SHA-256).
//
// Pages hash the markup skeleton alone: prose differences inside an
// identical skeleton collapse to the same signature. Snippets concatenate
// the skeletonized HTML with the raw CSS and JS bodies, so code and styling
// differences still count as distinct documents.
//
// Unrecognized shapes fall back to a key-sorted canonical serialization.
// That is a weaker guarantee than skeletonization — kept deliberately, the
// asymmetry matches observed duplicate patterns.
func Fingerprint(d *document.Document) string {
	switch d.Kind {
	case document.KindPage:
		return hashString(Skeletonize(d.HTML))
	case document.KindSnippet:
		return hashString(Skeletonize(d.HTML) + "\n" + d.CSS + "\n" + d.JS)
	default:
		return hashString(canonicalJSON(d))
	}
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}

// canonicalJSON serializes v with object keys sorted, via a marshal →
// generic-decode → re-marshal round trip (encoding/json sorts map keys).
func canonicalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("unserializable:%v", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	sorted, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(sorted)
}

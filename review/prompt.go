package review

import "fmt"

const reviewSystemPrompt = `You are a strict content reviewer for generated web documents.
For each document in the JSON array you receive, judge whether it is safe
to serve: no external network requests, no data exfiltration, no deceptive
UI, no explicit or hateful content, and the code must be self-contained.

Respond with ONLY a JSON array, one verdict per document:
[{"index": 0, "ok": true},
 {"index": 1, "ok": false, "issues": ["loads remote script"]},
 {"index": 2, "ok": true, "corrected": { ...full replacement document... }}]

Use "corrected" only when a small fix makes an otherwise-good document
acceptable; the corrected value replaces the document wholesale.`

func reviewUserPrompt(brief string, batch []byte) string {
	if brief == "" {
		brief = "an unprompted, self-contained interactive web page"
	}
	return fmt.Sprintf("The documents were generated for: %s\n\nDocuments:\n%s", brief, batch)
}

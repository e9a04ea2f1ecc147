// Package dedupe fingerprints generated documents by markup structure and
// tracks recently seen fingerprints in a bounded registry.
//
// LLM output frequently reuses a layout shape with different copy. Hashing
// the content-stripped tag skeleton instead of the full text treats those
// layout twins as duplicates, keeping the prefetch queue visually varied
// while still letting genuinely different code and styling through.
package dedupe

import "regexp"

var (
	reComment      = regexp.MustCompile(`(?s)<!--.*?-->`)
	reScript       = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reStyle        = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	reBetweenTags  = regexp.MustCompile(`>[^<>]*<`)
	reLeadingText  = regexp.MustCompile(`^[^<]+`)
	reTrailingText = regexp.MustCompile(`[^>]+$`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// Skeletonize reduces markup to its tag-and-attribute structure: no
// comments, no script or style bodies, no visible text, no whitespace.
//
// The steps run in a fixed order; later steps assume earlier ones already
// ran (text stripping would otherwise expose comment and script content to
// the between-tags pass).
func Skeletonize(markup string) string {
	s := reComment.ReplaceAllString(markup, "")
	s = reScript.ReplaceAllString(s, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reBetweenTags.ReplaceAllString(s, "><")
	s = reLeadingText.ReplaceAllString(s, "")
	s = reTrailingText.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, "")
	return s
}

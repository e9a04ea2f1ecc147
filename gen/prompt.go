package gen

import "fmt"

const systemPrompt = `You generate small, self-contained interactive web documents.

Output rules:
- Respond with ONLY JSON, no prose, no markdown fences.
- Each document is a JSON object in one of two shapes:
  {"kind":"page","html":"<!DOCTYPE html>...","title":"..."}
  {"kind":"snippet","html":"...","css":"...","js":"...","title":"...",
   "background":{"style":"...","class":"..."}}
- Everything must be self-contained: no external scripts, stylesheets,
  fonts, images, or network requests of any kind.
- Documents must work immediately when mounted, with no build step.`

// userPrompt embeds the drawn category, the seed, and the caller's brief.
// count > 1 asks for a burst: a JSON array of distinct documents.
func userPrompt(category, brief string, seed int64, count int) string {
	if brief == "" {
		brief = "something delightful and unexpected"
	}
	if count > 1 {
		return fmt.Sprintf(
			"Create %d distinct interactive documents in the category %q.\n"+
				"Theme/brief: %s\nVariety seed: %d\n"+
				"Respond with a JSON array of %d document objects. Make each one "+
				"visually and mechanically different from the others.",
			count, category, brief, seed, count)
	}
	return fmt.Sprintf(
		"Create one interactive document in the category %q.\n"+
			"Theme/brief: %s\nVariety seed: %d\n"+
			"Respond with a single JSON document object.",
		category, brief, seed)
}

package mcpserver

// EntryFormatContract describes how entries are written and stored so that
// LLM consumers can draft entries that render correctly.
const EntryFormatContract = `# Echoes Entry Format

Entries are stored as one JSON array in the catalog file. Each element:

` + "```" + `json
{
  "id": "my-new-tale",
  "title": "My New Tale",
  "subtitle": "One line shown on the card",
  "thumbnailUrl": "https://placehold.co/600x350/E0BBE4/ffffff?text=New+Story+Image",
  "foreword": "Optional short introduction shown above the story.",
  "storyText": "Para one\\n\\nPara two"
}
` + "```" + `

## Rules

1. **` + "`" + `id` + "`" + ` is derived from the title.** Letters are lower-cased and every run of characters
   outside a-z and 0-9 (accented letters included) becomes a single ` + "`" + `-` + "`" + `. Titles that differ only in case, accents or
   punctuation collide, and ` + "`" + `admin` + "`" + ` is reserved.
2. **Title and body are required.** Subtitle, foreword and thumbnail are optional; an empty
   thumbnail gets the default placeholder image.
3. **Body text** is written with real line breaks. A blank line starts a new paragraph, a
   single line break stays inside the paragraph. Storage escapes both as ` + "`" + `\n` + "`" + `.
4. **Emphasis:** ` + "`" + `**bold**` + "`" + ` and ` + "`" + `*italic*` + "`" + ` on a single line. No other markup; HTML is
   escaped when rendered.
5. **Thumbnails** must be absolute http(s) URLs of an image (png, jpg, gif, webp, svg). Use
   the ` + "`" + `check_thumbnail` + "`" + ` tool to verify one before adding an entry.
6. Entries are append-only. Saving requires a storage token with write access to the
   catalog repository; it is passed per call and never stored.

## Addressing

The reader's URL fragment selects the view: empty for the catalog, ` + "`" + `admin` + "`" + ` for the
editor, or an entry id. Unknown fragments show the catalog. Use ` + "`" + `resolve_fragment` + "`" + ` to check.
`

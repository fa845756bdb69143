// Package format provides message body rendering utilities.
package format

import (
	"strings"
)

const (
	paragraphOpen  = "<p>"
	paragraphClose = "</p>"
	lineBreak      = "<br>"
)

// TextToHTML renders a plain text body as a single HTML paragraph.
// Every line feed becomes a <br> element; the text itself is not escaped.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(text) + len(paragraphOpen) + len(paragraphClose))
	b.WriteString(paragraphOpen)
	b.WriteString(strings.ReplaceAll(text, "\n", lineBreak))
	b.WriteString(paragraphClose)

	return b.String()
}

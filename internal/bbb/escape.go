package bbb

import "strings"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// XMLEscape escapes text content for inclusion in protocol documents.
func XMLEscape(s string) string {
	return xmlEscaper.Replace(s)
}

package conversation

import (
	"path"
	"strings"
	"time"
)

// ExportDir is the vault folder chat exports are written to.
const ExportDir = "chats"

// SourceLink renders a document path as a wikilink: the path without its
// extension, aliased by the file name.
func SourceLink(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	target := strings.TrimSuffix(p, path.Ext(p))
	name := target[strings.LastIndex(target, "/")+1:]
	return "[[" + target + " | " + name + "]]"
}

// Markdown renders turns as a Markdown document: each question as a level-2
// heading followed by the answer and, when present, its linked sources.
func Markdown(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		b.WriteString("## " + t.Question + "\n\n")
		b.WriteString(t.Answer + "\n\n")
		if len(t.Sources) > 0 {
			b.WriteString("Sources:\n")
			for _, s := range t.Sources {
				b.WriteString("- " + SourceLink(s) + "\n")
			}
			b.WriteString("\n")
		}
		if i < len(turns)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

// ExportPath returns the vault-relative file name for an export made at t.
func ExportPath(t time.Time) string {
	stamp := strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	return ExportDir + "/chat-export-" + stamp + ".md"
}

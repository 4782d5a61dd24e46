// Package chunker splits Markdown documents into bounded, paragraph-aligned segments.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSize is the soft upper bound of a chunk, in characters.
const DefaultMaxSize = 1000

const paragraphSep = "\n\n"

// Split breaks text into chunks of roughly maxSize characters.
//
// The text is first cut into sections at every line that starts with '#'.
// Each section is then cut into blank-line separated paragraphs which are
// packed greedily into chunks. A paragraph is never split: one that is longer
// than maxSize on its own becomes an oversized chunk. Blank paragraphs left by
// runs of empty lines still count toward the size. Chunks never span two
// sections and empty chunks are dropped. A non-positive maxSize selects
// DefaultMaxSize.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []string
	for _, section := range sections(text) {
		var buf strings.Builder
		size := 0
		for _, para := range strings.Split(strings.TrimSpace(section), paragraphSep) {
			n := utf8.RuneCountInString(para)
			if size > 0 && size+n+1 > maxSize {
				chunks = appendChunk(chunks, buf.String())
				buf.Reset()
				size = 0
			}
			buf.WriteString(para)
			buf.WriteString(paragraphSep)
			size += n + len(paragraphSep)
		}
		chunks = appendChunk(chunks, buf.String())
	}
	return chunks
}

// sections cuts text before every line beginning with a heading marker.
// Text preceding the first heading forms its own section.
func sections(text string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(line, "#") && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func appendChunk(chunks []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		return append(chunks, s)
	}
	return chunks
}

package answer

import "strings"

const preamble = `You are an assistant answering questions about the user's personal notes.
Keep answers short and factual, formatted as Markdown, and never wrap the
whole answer in a code fence. Use the conversation history to resolve
follow-up questions. Base the answer on the relevant content below; when it
does not cover the question, say so plainly.`

// BuildPrompt assembles the single prompt sent to the generator.
func BuildPrompt(transcript, query, context string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nConversation history:\n")
	if transcript == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(transcript)
	}
	b.WriteString("\n\nHuman: ")
	b.WriteString(query)
	b.WriteString("\n\nRelevant content:\n")
	b.WriteString(context)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

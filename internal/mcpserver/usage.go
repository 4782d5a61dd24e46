package mcpserver

// UsageGuide explains to MCP clients how the Ansuz tools fit together.
const UsageGuide = `# Ansuz Usage Guide

Ansuz answers questions from a Markdown vault. Every document is split into
passages, embedded and kept in a vector index that follows the files on disk.

## Tools

- ` + "`ask`" + ` answers a question using the closest passages and the recent turns
  of a conversation. Pass the returned ` + "`session_id`" + ` back to continue the
  same conversation. Omit it to keep using the server's default conversation.
- ` + "`search_vault`" + ` returns the matching passages without generating an answer.
  Use it to inspect what ` + "`ask`" + ` would see.
- ` + "`read_document`" + ` returns the full body of a vault document by relative path.
- ` + "`list_documents`" + ` lists indexed documents, optionally inside one folder.
- ` + "`reindex`" + ` synchronizes the index with the vault. Set ` + "`force`" + ` to re-embed
  documents whose content did not change.

## Sources

Answers list the vault-relative paths of the passages they were built from.
Passages further than the distance threshold are never used; when nothing is
close enough the answer is generated without vault context.

## Paths

Paths use forward slashes and are relative to the vault root
(e.g. ` + "`garden/tomatoes.md`" + `). Hidden directories and ignored globs are never indexed.
`

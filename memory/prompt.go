package memory

import (
	"strings"

	"github.com/becomeliminal/recall/core"
)

// NoMemoryPlaceholder is what front ends show when nothing was recalled.
const NoMemoryPlaceholder = "No relevant memory found."

// GenericInstruction is the system prompt used when no memory was recalled.
const GenericInstruction = "You are a helpful assistant."

// JoinDocuments concatenates record documents one per line, keeping the
// store's ranking order.
func JoinDocuments(records []*Record) string {
	docs := make([]string, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.Document)
	}
	return strings.Join(docs, "\n")
}

// Instruction builds the system prompt for the given recalled context.
func Instruction(memoryContext string) string {
	if memoryContext == "" {
		return GenericInstruction
	}
	return "You are a helpful assistant with memory.\n" +
		"RELEVANT MEMORIES:\n" + memoryContext + "\n\n" +
		"Answer the user's question using these memories."
}

// BuildMessages returns exactly one system and one user message. Earlier
// conversation turns are never included.
func BuildMessages(memoryContext, query string) []core.Message {
	return []core.Message{
		core.SystemMessage(Instruction(memoryContext)),
		core.UserMessage(query),
	}
}

// DisplayContext substitutes NoMemoryPlaceholder for an empty context.
func DisplayContext(memoryContext string) string {
	if memoryContext == "" {
		return NoMemoryPlaceholder
	}
	return memoryContext
}

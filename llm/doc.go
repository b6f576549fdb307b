// Package llm holds the chat-completion clients a memory.Pipeline can
// answer with. Each subpackage adapts one provider SDK to
// memory.LanguageModel:
//
//   - openai: any OpenAI-compatible endpoint. The default base URL is Groq's,
//     serving llama-3.3-70b-versatile.
//   - anthropic: the Claude Messages API.
//   - google: the Gemini API.
//
// Clients are stateless beyond their SDK handle and safe for concurrent use.
package llm

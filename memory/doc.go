// Package memory implements the retrieval-augmented conversation loop.
//
// User turns are embedded and written to a vector store. Before answering a
// new turn, the query is embedded, the two nearest stored turns are fetched
// and placed into the system instruction, and a hosted language model
// produces the answer.
//
// Architecture:
//   - Store: Vector storage backend (chromem-go locally, sqlite-vec, pgvector)
//   - Embedder: Text-to-vector conversion (ONNX MiniLM, OpenAI, Gemini, hash mock)
//   - LanguageModel: Chat completion (Groq/OpenAI-compatible, Claude, Gemini)
//   - Pipeline: Orchestrates Retrieve and Ingest
//
// Ordering:
//   - RETRIEVE for turn N completes before INGEST for turn N starts, so a turn
//     can never be recalled as context for answering itself. The engine
//     package enforces this; Pipeline itself holds no per-turn state.
//
// Ingestion policy:
//   - StoreAll (default) writes every turn.
//   - KeywordPolicy writes only turns that look like personal facts.
package memory

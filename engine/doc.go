// Package engine runs the retrieval-augmented conversation loop shared by
// the CLI, HTTP, WebSocket and gRPC front ends.
//
// A turn proceeds in two phases:
//
//	PHASE 1  retrieve the nearest memories and answer with them
//	PHASE 2  ingest the user's text as a new memory
//
// Phase 2 never starts before phase 1 has finished, and is skipped entirely
// when phase 1 fails.
package engine

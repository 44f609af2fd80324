// Package refresh keeps project embeddings in step with project content.
//
// Two paths write embeddings:
//
//   - Event-driven refresh. Run consumes mutation events from an
//     events.Queue and submits one task per event to a bounded
//     worker.Pool. The task reloads the committed project, rebuilds its
//     searchable text, calls the provider outside any transaction, then
//     writes the vector in a short transaction guarded by the project
//     revision. Failures are logged and counted; the stored embedding is
//     left as it was.
//
//   - Bulk regenerate. RegenerateAll walks every project sequentially,
//     batching provider calls with EmbedBatch and falling back to one Embed
//     per project when a batch call fails. Each project is written in its
//     own transaction, and one failure never stops the run.
//
// A Tracker records the per-project state (NO_EMBEDDING, GENERATING,
// EMBEDDED, FAILED) for status reporting.
package refresh

// Package flow contains the steps the engine composes into a turn: the
// Router deciding between compaction and a direct answer, the Summarizer,
// the Responder building the prompt and calling the model, and the
// Dispatcher executing tool calls and recording their results as memories.
//
// Steps never mutate the session they are given. They return deltas
// (Compaction, tool results, model responses) which the engine applies and
// checkpoints.
package flow

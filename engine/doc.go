// Package engine drives conversations through the turn state machine.
//
// A turn starts at the entry stage, optionally compacts the conversation
// (summarize), asks the model (chatbot), runs requested tools (tools) and
// records their results as long-term memories (save_tool_result) before
// looping back to the model. It ends when the model answers without tool
// calls.
//
// # Checkpoints
//
// The session is written to the CheckpointStore after every stage that
// changes it. The stored stage is the cursor of the next step, so a process
// that dies mid-turn resumes exactly there: a crash after the tools stage
// replays only the memory writes, not the tools.
//
// # Concurrency
//
// Turns of one thread are serialized by a per-thread lock that honours the
// caller's context. Different threads share only the stores and run in
// parallel.
//
// # Callbacks
//
// A CallbackManager observes model calls, tool batches, transitions and
// failures. LoggingCallbacks wires them to a logging.StructuredLogger.
//
//	eng, err := engine.New(func(o *engine.Options) {
//	    o.Model = m
//	    o.Tools = registry
//	    o.Checkpoints = session.NewInMemoryStore()
//	    o.Memories = memory.NewInMemoryStore()
//	    o.Callbacks = engine.NewCallbackManager(engine.LoggingCallbacks(logger)...)
//	})
//	answer, err := eng.SubmitTurn(ctx, "thread-1", "user-1", "hello")
package engine

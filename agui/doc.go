// Package agui maps the agent's event feed onto the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol that standardizes
// how agents connect to user-facing applications. This package converts
// agent events and conversation turns to AG-UI events and messages; the
// transport (SSE) lives in cmd/server.
//
//	input, err := req.Prepare()
//	mapper := agui.NewMapper(input.ThreadID, input.RunID)
//	feed := a.RunStream(ctx, input.Question, agent.WithHistory(input.History))
//	for ev := range mapper.MapStream(feed) {
//	    writeSSE(w, ev)
//	}
//
// A typical tool-using run maps to:
//
//	RUN_STARTED
//	STEP_STARTED step-1
//	TEXT_MESSAGE_START / TEXT_MESSAGE_CONTENT... / TEXT_MESSAGE_END
//	TOOL_CALL_START / TOOL_CALL_ARGS / TOOL_CALL_END / TOOL_CALL_RESULT
//	STEP_FINISHED step-1
//	STEP_STARTED step-2
//	TEXT_MESSAGE_START / TEXT_MESSAGE_CONTENT... / TEXT_MESSAGE_END
//	STEP_FINISHED step-2
//	RUN_FINISHED
package agui

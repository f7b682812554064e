// Package agent runs the question-answering loop: it calls the model, runs
// the tools the model asks for, feeds results back and streams progress.
//
// A run moves through AWAITING_MODEL, then TOOL_REQUESTED or FINAL_READY,
// and ends in TERMINATED. Each model round is one step. Tool calls are taken
// from the provider's native tool calls when present, otherwise from
// <tool_call>{"name": ..., "parameters": {...}}</tool_call> blocks in the
// reply text. Calls run sequentially in the order the model emitted them.
//
// # Events
//
// A direct answer produces exactly:
//
//	final_start, final_stream*, final
//
// A round that requests tools produces the reply prose as stream events,
// then for each call a tool notice and a step_complete, then a thinking
// event before the next round. Every run ends with either final or error.
//
// # Usage
//
//	a := agent.New(provider, registry)
//	for ev := range a.RunStream(ctx, "获取TSLA最近一个月价格") {
//	    fmt.Println(ev.Type, ev.Content)
//	}
//
// Run is the blocking form:
//
//	res, err := a.Run(ctx, question, agent.WithMaxSteps(5))
package agent

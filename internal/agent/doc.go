// Package agent coordinates one chat turn: it bridges a free-text user
// message to owner-scoped task mutations executed only through the closed
// tool registry.
//
// Invariants:
//   - a successful turn appends exactly one user message and one agent
//     message to the conversation.
//   - tool calls run sequentially, bounded to one round per turn.
//   - every executed or rejected tool call leaves an audit record.
//
// Flow:
//
//	user(text) -> model(tool_use?) -> execute tools -> model(text) -> agent(text)
package agent

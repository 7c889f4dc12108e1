package tools

import (
	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

// Registry returns all task tools bound to one owner. The registry is
// closed: the orchestrator rejects any tool name not present here, and no
// tool reads an owner identifier from model-supplied arguments.
func Registry(st *store.Store, owner uuid.UUID) []ToolDefinition {
	return []ToolDefinition{
		AddTaskDefinition(st, owner),
		ListTasksDefinition(st, owner),
		UpdateTaskDefinition(st, owner),
		CompleteTaskDefinition(st, owner),
		DeleteTaskDefinition(st, owner),
	}
}

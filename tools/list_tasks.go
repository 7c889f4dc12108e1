package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type ListTasksInput struct{}

var ListTasksInputSchema = GenerateSchema[ListTasksInput]()

// ListTasksDefinition returns every task belonging to the bound owner as a
// JSON array, oldest first.
func ListTasksDefinition(st *store.Store, owner uuid.UUID) ToolDefinition {
	return ToolDefinition{
		Name:        "list_tasks",
		Description: "List all of the user's tasks with their ids, titles, and completion state.",
		InputSchema: ListTasksInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			tasks, err := st.ListTasks(ctx, owner)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(tasks)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}

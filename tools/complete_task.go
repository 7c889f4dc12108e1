package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type CompleteTaskInput struct {
	TaskID string `json:"task_id" jsonschema_description:"Id of the task whose completion state to toggle."`
}

var CompleteTaskInputSchema = GenerateSchema[CompleteTaskInput]()

// CompleteTaskDefinition toggles a task's completion flag. The toggle
// semantics are stated in the description so the model can reason about
// tasks that are already done.
func CompleteTaskDefinition(st *store.Store, owner uuid.UUID) ToolDefinition {
	return ToolDefinition{
		Name:        "complete_task",
		Description: "Toggle a task's completion state: a pending task becomes completed and a completed task becomes pending again. Returns the task with its new state.",
		InputSchema: CompleteTaskInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in CompleteTaskInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			id, err := parseTaskID(in.TaskID)
			if err != nil {
				return "", err
			}
			task, err := st.ToggleComplete(ctx, owner, id)
			if err != nil {
				return "", err
			}
			return marshalTask(task)
		},
	}
}

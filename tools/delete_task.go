package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type DeleteTaskInput struct {
	TaskID string `json:"task_id" jsonschema_description:"Id of the task to delete."`
}

var DeleteTaskInputSchema = GenerateSchema[DeleteTaskInput]()

// DeleteTaskDefinition removes an owner's task.
func DeleteTaskDefinition(st *store.Store, owner uuid.UUID) ToolDefinition {
	return ToolDefinition{
		Name:        "delete_task",
		Description: "Permanently delete a task. Returns a confirmation when the task existed.",
		InputSchema: DeleteTaskInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in DeleteTaskInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			id, err := parseTaskID(in.TaskID)
			if err != nil {
				return "", err
			}
			if err := st.DeleteTask(ctx, owner, id); err != nil {
				return "", err
			}
			return fmt.Sprintf(`{"deleted":true,"task_id":%q}`, id.String()), nil
		},
	}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type UpdateTaskInput struct {
	TaskID      string  `json:"task_id" jsonschema_description:"Id of the task to update."`
	Title       *string `json:"title,omitempty" jsonschema_description:"New title, if changing it."`
	Description *string `json:"description,omitempty" jsonschema_description:"New description, if changing it."`
	Completed   *bool   `json:"completed,omitempty" jsonschema_description:"New completion state, if changing it."`
}

var UpdateTaskInputSchema = GenerateSchema[UpdateTaskInput]()

// UpdateTaskDefinition updates the provided fields on an owner's task.
func UpdateTaskDefinition(st *store.Store, owner uuid.UUID) ToolDefinition {
	return ToolDefinition{
		Name:        "update_task",
		Description: "Update a task's title, description, or completion state. Only provided fields change.",
		InputSchema: UpdateTaskInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in UpdateTaskInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			id, err := parseTaskID(in.TaskID)
			if err != nil {
				return "", err
			}
			if in.Title == nil && in.Description == nil && in.Completed == nil {
				return "", fmt.Errorf("%w: at least one of title, description, completed is required", ErrInvalidArguments)
			}
			task, err := st.UpdateTask(ctx, owner, id, store.TaskUpdate{
				Title:       in.Title,
				Description: in.Description,
				Completed:   in.Completed,
			})
			if err != nil {
				return "", err
			}
			return marshalTask(task)
		},
	}
}

func parseTaskID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: task_id is required", ErrInvalidArguments)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: task_id %q is not a valid id", ErrInvalidArguments, raw)
	}
	return id, nil
}

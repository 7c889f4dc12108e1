package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type AddTaskInput struct {
	Title       string `json:"title" jsonschema_description:"Title of the task to create."`
	Description string `json:"description,omitempty" jsonschema_description:"Optional longer description."`
}

var AddTaskInputSchema = GenerateSchema[AddTaskInput]()

// AddTaskDefinition creates a task for the bound owner and returns it as JSON.
func AddTaskDefinition(st *store.Store, owner uuid.UUID) ToolDefinition {
	return ToolDefinition{
		Name:        "add_task",
		Description: "Create a new task for the user. Returns the created task including its id.",
		InputSchema: AddTaskInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in AddTaskInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			if strings.TrimSpace(in.Title) == "" {
				return "", fmt.Errorf("%w: title is required", ErrInvalidArguments)
			}
			task, err := st.CreateTask(ctx, owner, in.Title, in.Description)
			if err != nil {
				return "", err
			}
			return marshalTask(task)
		},
	}
}

func marshalTask(t store.Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

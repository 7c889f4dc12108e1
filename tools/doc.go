// Package tools defines the closed set of task operations the model may
// request.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Task tools: add_task, list_tasks, update_task, complete_task, delete_task.
//   - Invariant: every handler is bound to one owner at construction time;
//     model-supplied arguments can never address another user's data.
package tools

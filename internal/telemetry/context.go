package telemetry

import "context"

type turnIDKey struct{}

// WithTurnID stores a chat-turn id on the context so every event emitted
// while handling that turn can be correlated in the JSONL stream.
func WithTurnID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnIDFromContext reports the turn id carried by ctx. An empty or missing
// value reads as absent.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(turnIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Package telemetry records chat-turn and tool-execution events as JSON
// lines. It is a local debugging aid, not a metrics pipeline: events carry
// ids, counts, and durations, never message or argument payloads.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Emission is opt-in per process via TP_OBSERVE_JSON=1 and lands in
// eventsDir relative to the working directory.
const (
	enableEnv  = "TP_OBSERVE_JSON"
	eventsDir  = ".taskpilot"
	eventsFile = "events.jsonl"
)

func enabled() bool {
	return os.Getenv(enableEnv) == "1"
}

// Emit appends one event line, stamping it with the event name and an
// RFC3339Nano timestamp. The caller's field map is never mutated. Failures
// go to stderr and are otherwise swallowed: observability must not break a
// chat turn.
func Emit(name string, fields map[string]any) {
	if !enabled() {
		return
	}

	event := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		event[k] = v
	}
	event["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	event["event"] = name

	line, err := json.Marshal(event)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: marshal %s: %v\n", name, err)
		return
	}
	if err := appendLine(line); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: %v\n", err)
	}
}

func appendLine(line []byte) error {
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", eventsDir, err)
	}
	path := filepath.Join(eventsDir, eventsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

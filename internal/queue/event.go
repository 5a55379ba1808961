package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindDone    EventKind = "done"
)

// TranscriptEvent is one entry of a run's transcript stream: an appended
// message, or the terminal done marker.
type TranscriptEvent struct {
	ID         string    `json:"id,omitempty"` // stream entry ID, set when read back
	RunID      string    `json:"run_id"`
	Kind       EventKind `json:"kind"`
	Speaker    string    `json:"speaker,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	Sequence   int       `json:"sequence"`
	Text       string    `json:"text,omitempty"`
	Status     string    `json:"status,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// StreamName is the Redis stream holding a run's transcript.
func StreamName(prefix, runID string) string {
	return fmt.Sprintf("%s:%s", prefix, runID)
}

func eventValues(ev TranscriptEvent) map[string]any {
	values := map[string]any{
		"run_id":   ev.RunID,
		"kind":     string(ev.Kind),
		"sequence": ev.Sequence,
	}
	if ev.Kind == "" {
		values["kind"] = string(EventKindMessage)
	}

	optional := map[string]string{
		"speaker":     ev.Speaker,
		"phase":       ev.Phase,
		"text":        ev.Text,
		"status":      ev.Status,
		"stop_reason": ev.StopReason,
		"trace_id":    ev.TraceID,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	return values
}

// ParseEvent decodes a stream entry written by the publisher.
func ParseEvent(msg redis.XMessage) (TranscriptEvent, error) {
	sequence, err := parseOptionalInt(msg.Values, "sequence")
	if err != nil {
		return TranscriptEvent{}, err
	}

	ev := TranscriptEvent{
		ID:         msg.ID,
		RunID:      parseOptionalString(msg.Values, "run_id"),
		Kind:       EventKind(parseOptionalString(msg.Values, "kind")),
		Speaker:    parseOptionalString(msg.Values, "speaker"),
		Phase:      parseOptionalString(msg.Values, "phase"),
		Sequence:   sequence,
		Text:       parseOptionalString(msg.Values, "text"),
		Status:     parseOptionalString(msg.Values, "status"),
		StopReason: parseOptionalString(msg.Values, "stop_reason"),
		TraceID:    parseOptionalString(msg.Values, "trace_id"),
	}
	switch ev.Kind {
	case EventKindMessage, EventKindDone:
	case "":
		return TranscriptEvent{}, fmt.Errorf("missing kind in entry %s", msg.ID)
	default:
		return TranscriptEvent{}, fmt.Errorf("unknown event kind %q in entry %s", ev.Kind, msg.ID)
	}
	return ev, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

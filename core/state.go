package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who authored a transcript entry.
type Role string

const (
	// RoleUser marks the task text and any later user input.
	RoleUser Role = "user"
	// RoleAgent marks output produced by a worker.
	RoleAgent Role = "agent"
	// RoleSystem marks orchestrator notes (never produced by workers).
	RoleSystem Role = "system"
)

// Message is a single role-tagged transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// NewUserMessage creates a user-authored message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAgentMessage creates a message authored by the named worker.
func NewAgentMessage(name, content string) Message {
	return Message{Role: RoleAgent, Name: name, Content: content}
}

// TaskState is the single shared aggregate of a session. It is only ever
// changed through Merge; every field has a fixed merge rule:
//
//	Messages        append-only concatenation in arrival order
//	Task            immutable after NewTaskState
//	Results         last-write-wins per worker name
//	IterationCount  replace (must never decrease)
//	NextAgent       replace (transient routing slot)
type TaskState struct {
	Task           string            `json:"task"`
	Messages       []Message         `json:"messages"`
	Results        map[string]string `json:"results"`
	IterationCount int               `json:"iteration_count"`
	NextAgent      string            `json:"next_agent,omitempty"`
}

// NewTaskState returns the initial state of a session: no iterations, no
// results and the task as the single user message.
func NewTaskState(task string) TaskState {
	return TaskState{
		Task:     task,
		Messages: []Message{NewUserMessage(task)},
		Results:  map[string]string{},
	}
}

// Clone returns a deep copy of the state.
func (s TaskState) Clone() TaskState {
	c := s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Results = make(map[string]string, len(s.Results))
	for k, v := range s.Results {
		c.Results[k] = v
	}
	return c
}

// Finished reports whether the Controller has terminated the session.
func (s TaskState) Finished() bool {
	return s.NextAgent == Finish
}

// RecentMessages returns at most k trailing messages. k <= 0 yields none.
func (s TaskState) RecentMessages(k int) []Message {
	if k <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := len(s.Messages) - k
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), s.Messages[start:]...)
}

// LastMessage returns the newest transcript entry.
func (s TaskState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// FieldSet is a bit set of TaskState fields.
type FieldSet uint8

const (
	// FieldMessages is the transcript.
	FieldMessages FieldSet = 1 << iota
	// FieldTask is the immutable task description.
	FieldTask
	// FieldResults is the per-worker result map.
	FieldResults
	// FieldIterationCount is the completed worker invocation counter.
	FieldIterationCount
	// FieldNextAgent is the routing slot.
	FieldNextAgent
)

const (
	// WorkerFields is what a worker node may produce.
	WorkerFields = FieldMessages | FieldResults | FieldIterationCount
	// ControllerFields is what the Controller may produce.
	ControllerFields = FieldNextAgent
	// AllMutableFields covers every field Merge can change.
	AllMutableFields = WorkerFields | ControllerFields
)

var fieldNames = []struct {
	field FieldSet
	name  string
}{
	{FieldMessages, "messages"},
	{FieldTask, "task"},
	{FieldResults, "results"},
	{FieldIterationCount, "iteration_count"},
	{FieldNextAgent, "next_agent"},
}

// Has reports whether every field in f is present in s.
func (s FieldSet) Has(f FieldSet) bool { return s&f == f }

// String lists the field names in declaration order.
func (s FieldSet) String() string {
	var names []string
	for _, fn := range fieldNames {
		if s.Has(fn.field) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// PartialState is the update a node hands back to the executor. Nil or empty
// fields are absent. Extra collects fields TaskState does not know so they can
// be rejected instead of silently dropped.
type PartialState struct {
	Messages       []Message         `json:"messages,omitempty"`
	Results        map[string]string `json:"results,omitempty"`
	IterationCount *int              `json:"iteration_count,omitempty"`
	NextAgent      *string           `json:"next_agent,omitempty"`
	Task           *string           `json:"task,omitempty"`
	Extra          map[string]any    `json:"-"`
}

// Fields returns the set of known fields the update carries.
func (p PartialState) Fields() FieldSet {
	var s FieldSet
	if len(p.Messages) > 0 {
		s |= FieldMessages
	}
	if p.Task != nil {
		s |= FieldTask
	}
	if len(p.Results) > 0 {
		s |= FieldResults
	}
	if p.IterationCount != nil {
		s |= FieldIterationCount
	}
	if p.NextAgent != nil {
		s |= FieldNextAgent
	}
	return s
}

// UnmarshalJSON decodes known fields and keeps everything else in Extra.
func (p *PartialState) UnmarshalJSON(data []byte) error {
	type plain PartialState

	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = PartialState(known)

	for key, value := range raw {
		if isKnownField(key) {
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		var v any
		_ = json.Unmarshal(value, &v)
		p.Extra[key] = v
	}

	return nil
}

func isKnownField(name string) bool {
	for _, fn := range fieldNames {
		if fn.name == name {
			return true
		}
	}
	return false
}

// Merge applies partial to current and returns the new state. It is pure:
// neither argument is modified and the result shares no memory with them.
// Updates touching fields outside allowed, unknown fields, a rewritten task
// or a decreasing iteration counter fail with *MalformedUpdateError.
func Merge(current TaskState, partial PartialState, allowed FieldSet) (TaskState, error) {
	for key := range partial.Extra {
		return TaskState{}, &MalformedUpdateError{Field: key, Reason: "unknown field"}
	}

	if partial.Task != nil {
		return TaskState{}, &MalformedUpdateError{Field: "task", Reason: "task is immutable"}
	}

	if disallowed := partial.Fields() &^ allowed; disallowed != 0 {
		return TaskState{}, &MalformedUpdateError{Field: disallowed.String(), Reason: "field not permitted for this node"}
	}

	if partial.IterationCount != nil && *partial.IterationCount < current.IterationCount {
		return TaskState{}, &MalformedUpdateError{
			Field:  "iteration_count",
			Reason: fmt.Sprintf("counter may not decrease (%d -> %d)", current.IterationCount, *partial.IterationCount),
		}
	}

	next := current.Clone()

	next.Messages = append(next.Messages, partial.Messages...)

	for k, v := range partial.Results {
		next.Results[k] = v
	}

	if partial.IterationCount != nil {
		next.IterationCount = *partial.IterationCount
	}

	if partial.NextAgent != nil {
		next.NextAgent = *partial.NextAgent
	}

	return next, nil
}

// Int returns a pointer to v. Handy for building partial updates.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

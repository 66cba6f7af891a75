package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewTaskState(t *testing.T) {
	s := NewTaskState("write a report")

	if s.Task != "write a report" {
		t.Fatalf("unexpected task %q", s.Task)
	}
	if s.IterationCount != 0 {
		t.Fatalf("expected iteration 0, got %d", s.IterationCount)
	}
	if len(s.Results) != 0 || s.Results == nil {
		t.Fatalf("expected empty non-nil results, got %#v", s.Results)
	}
	if len(s.Messages) != 1 || s.Messages[0].Role != RoleUser || s.Messages[0].Content != "write a report" {
		t.Fatalf("expected single user message, got %#v", s.Messages)
	}
}

func TestMergeRules(t *testing.T) {
	current := NewTaskState("t")
	current.Results["researcher"] = "old"

	partial := PartialState{
		Messages:       []Message{NewAgentMessage("researcher", "new")},
		Results:        map[string]string{"researcher": "new"},
		IterationCount: Int(1),
	}

	next, err := Merge(current, partial, WorkerFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(next.Messages) != 2 || next.Messages[1].Content != "new" {
		t.Fatalf("messages not appended: %#v", next.Messages)
	}
	if next.Results["researcher"] != "new" {
		t.Fatalf("results not last-write-wins: %#v", next.Results)
	}
	if next.IterationCount != 1 {
		t.Fatalf("iteration not replaced: %d", next.IterationCount)
	}
	if next.Task != "t" {
		t.Fatalf("task changed: %q", next.Task)
	}
}

func TestMergeIsPure(t *testing.T) {
	current := NewTaskState("t")
	partial := PartialState{
		Messages:       []Message{NewAgentMessage("a", "x")},
		Results:        map[string]string{"a": "x"},
		IterationCount: Int(1),
	}

	next, err := Merge(current, partial, WorkerFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(current.Messages) != 1 || len(current.Results) != 0 || current.IterationCount != 0 {
		t.Fatalf("current mutated: %#v", current)
	}

	next.Results["a"] = "changed"
	next.Messages[0].Content = "changed"
	if partial.Results["a"] != "x" || current.Messages[0].Content != "t" {
		t.Fatal("merged state shares memory with its inputs")
	}
}

func TestMergeRejections(t *testing.T) {
	base := NewTaskState("t")
	base.IterationCount = 3

	tests := []struct {
		name    string
		partial PartialState
		allowed FieldSet
		field   string
	}{
		{"unknown field", PartialState{Extra: map[string]any{"score": 1}}, AllMutableFields, "score"},
		{"task rewrite", PartialState{Task: String("other")}, AllMutableFields, "task"},
		{"worker routes", PartialState{NextAgent: String("writer")}, WorkerFields, "next_agent"},
		{"controller writes results", PartialState{Results: map[string]string{"a": "b"}}, ControllerFields, "results"},
		{"counter decreases", PartialState{IterationCount: Int(2)}, WorkerFields, "iteration_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(base, tt.partial, tt.allowed)
			if !errors.Is(err, ErrMalformedUpdate) {
				t.Fatalf("expected ErrMalformedUpdate, got %v", err)
			}
			var mu *MalformedUpdateError
			if !errors.As(err, &mu) {
				t.Fatalf("expected *MalformedUpdateError, got %T", err)
			}
			if mu.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, mu.Field)
			}
		})
	}
}

func TestMergeNextAgent(t *testing.T) {
	next, err := Merge(NewTaskState("t"), PartialState{NextAgent: String(Finish)}, ControllerFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Finished() {
		t.Fatalf("expected finished state, got next agent %q", next.NextAgent)
	}
}

func TestMergeMessagesAppendOnly(t *testing.T) {
	state := NewTaskState("t")
	var history []Message
	history = append(history, state.Messages...)

	for i := 1; i <= 5; i++ {
		msg := NewAgentMessage("w", string(rune('a'+i)))
		var err error
		state, err = Merge(state, PartialState{
			Messages:       []Message{msg},
			Results:        map[string]string{"w": msg.Content},
			IterationCount: Int(i),
		}, WorkerFields)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		history = append(history, msg)

		for j := range history {
			if state.Messages[j] != history[j] {
				t.Fatalf("step %d: message %d changed from %#v to %#v", i, j, history[j], state.Messages[j])
			}
		}
	}
}

func TestPartialStateUnmarshalKeepsUnknownFields(t *testing.T) {
	var p PartialState
	data := []byte(`{"results":{"writer":"draft"},"iteration_count":1,"confidence":0.9}`)
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if p.Results["writer"] != "draft" || p.IterationCount == nil || *p.IterationCount != 1 {
		t.Fatalf("known fields not decoded: %#v", p)
	}
	if _, ok := p.Extra["confidence"]; !ok {
		t.Fatalf("unknown field dropped: %#v", p.Extra)
	}

	if _, err := Merge(NewTaskState("t"), p, WorkerFields); !errors.Is(err, ErrMalformedUpdate) {
		t.Fatalf("expected unknown field to be rejected, got %v", err)
	}
}

func TestRecentMessages(t *testing.T) {
	s := NewTaskState("t")
	for i := 0; i < 9; i++ {
		s.Messages = append(s.Messages, NewAgentMessage("w", string(rune('0'+i))))
	}

	recent := s.RecentMessages(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(recent))
	}
	if recent[4].Content != "8" || recent[0].Content != "4" {
		t.Fatalf("unexpected window %#v", recent)
	}
	if got := s.RecentMessages(0); got != nil {
		t.Fatalf("expected nil for k=0, got %#v", got)
	}
	if got := s.RecentMessages(100); len(got) != 10 {
		t.Fatalf("expected all 10 messages, got %d", len(got))
	}
}

func TestValidateWorkerUpdate(t *testing.T) {
	current := NewTaskState("t")
	current.IterationCount = 2

	ok := PartialState{Results: map[string]string{"writer": "x"}, IterationCount: Int(3)}
	if err := ValidateWorkerUpdate("writer", current, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []PartialState{
		{Results: map[string]string{"writer": "x"}, IterationCount: Int(3), NextAgent: String("analyst")},
		{Results: map[string]string{"analyst": "x"}, IterationCount: Int(3)},
		{Results: map[string]string{"writer": "x", "analyst": "y"}, IterationCount: Int(3)},
		{Results: map[string]string{"writer": "x"}, IterationCount: Int(5)},
		{Results: map[string]string{"writer": "x"}},
	}
	for i, p := range bad {
		if err := ValidateWorkerUpdate("writer", current, p); !errors.Is(err, ErrMalformedUpdate) {
			t.Errorf("case %d: expected ErrMalformedUpdate, got %v", i, err)
		}
	}
}

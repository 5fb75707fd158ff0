package macro

import (
	"testing"
	"time"
)

type recordingEmitter struct {
	messages []string
	commands []string
}

func (e *recordingEmitter) SendMessage(content, messageType string) error {
	e.messages = append(e.messages, content)
	return nil
}

func (e *recordingEmitter) ExecuteCommand(command string) error {
	e.commands = append(e.commands, command)
	return nil
}

func TestRecordingSessionDrainsInOrder(t *testing.T) {
	s := NewRecordingSession("m1", "greeting")
	actions := []MacroAction{
		{Kind: ActionSendMessage, Content: "hi"},
		{Kind: ActionWait, Duration: time.Millisecond},
		{Kind: ActionSendMessage, Content: "bye"},
	}
	for _, a := range actions {
		if err := s.RecordAction(a); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}

	macro, err := s.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if len(macro.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(macro.Actions))
	}
	if macro.Actions[0].Content != "hi" || macro.Actions[2].Content != "bye" {
		t.Error("actions should drain in insertion order")
	}
}

func TestRecordingSessionRejectsActionsAfterStop(t *testing.T) {
	s := NewRecordingSession("m1", "greeting")
	if _, err := s.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if err := s.RecordAction(MacroAction{Kind: ActionWait}); err == nil {
		t.Error("expected an error recording into a completed session")
	}
}

func TestValidateRejectsEmptyMacro(t *testing.T) {
	if err := Validate(&ChatMacro{}); err == nil {
		t.Error("expected an error for a macro with no actions")
	}
}

func TestValidateRejectsExcessiveNesting(t *testing.T) {
	deepest := MacroAction{Kind: ActionSendMessage, Content: "leaf"}
	for i := 0; i < 12; i++ {
		deepest = MacroAction{Kind: ActionLoop, Iterations: 1, Body: []MacroAction{deepest}}
	}
	m := &ChatMacro{Actions: []MacroAction{deepest}}
	if err := Validate(m); err == nil {
		t.Error("expected a depth-exceeded error")
	}
}

func TestPlaybackSubstitutesVariablesAndLoops(t *testing.T) {
	m := &ChatMacro{
		ID: "loop-macro",
		Actions: []MacroAction{
			{Kind: ActionSetVariable, VarName: "name", VarValue: "world"},
			{
				Kind:       ActionLoop,
				Iterations: 3,
				Body: []MacroAction{
					{Kind: ActionSendMessage, Content: "hello {name}"},
				},
			},
		},
	}
	if err := Validate(m); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	emitter := &recordingEmitter{}
	session := StartPlayback(m, nil, true, emitter)
	result := session.Run()

	if !result.Success {
		t.Fatalf("expected success, got err=%v", result.Err)
	}
	if len(emitter.messages) != 3 {
		t.Fatalf("expected loop body to run 3 times, got %d messages", len(emitter.messages))
	}
	for _, msg := range emitter.messages {
		if msg != "hello world" {
			t.Errorf("expected substituted message, got %q", msg)
		}
	}
	if result.ModifiedVariables["name"] != "world" {
		t.Errorf("expected modified_variables to report name=world, got %v", result.ModifiedVariables)
	}
}

func TestPlaybackActionsExecutedExcludesLoopHeader(t *testing.T) {
	m := &ChatMacro{
		ID: "count-macro",
		Actions: []MacroAction{
			{Kind: ActionSetVariable, VarName: "x", VarValue: "1"},
			{
				Kind:       ActionLoop,
				Iterations: 2,
				Body: []MacroAction{
					{Kind: ActionSendMessage, Content: "tick"},
				},
			},
		},
	}
	result := StartPlayback(m, nil, true, &recordingEmitter{}).Run()

	if !result.Success {
		t.Fatalf("expected success, got err=%v", result.Err)
	}
	if result.ActionsExecuted != 3 {
		t.Fatalf("expected actions_executed == 3 (1 SetVariable + 2 loop-body SendMessage), got %d", result.ActionsExecuted)
	}
}

func TestPlaybackLoopWithZeroIterationsIsANoOp(t *testing.T) {
	m := &ChatMacro{
		ID: "zero-loop",
		Actions: []MacroAction{
			{Kind: ActionLoop, Iterations: 0, Body: []MacroAction{{Kind: ActionSendMessage, Content: "never"}}},
			{Kind: ActionSendMessage, Content: "after"},
		},
	}
	emitter := &recordingEmitter{}
	session := StartPlayback(m, nil, true, emitter)
	result := session.Run()

	if !result.Success {
		t.Fatalf("expected success, got err=%v", result.Err)
	}
	if len(emitter.messages) != 1 || emitter.messages[0] != "after" {
		t.Fatalf("expected only the post-loop message, got %v", emitter.messages)
	}
}

func TestPlaybackConditionalPicksBranchInline(t *testing.T) {
	m := &ChatMacro{
		ID: "cond-macro",
		Actions: []MacroAction{
			{Kind: ActionSetVariable, VarName: "status", VarValue: "ok"},
			{
				Kind:      ActionConditional,
				Condition: Condition{LHS: "{status}", RHS: "ok"},
				Then:      []MacroAction{{Kind: ActionSendMessage, Content: "matched"}},
				Else:      []MacroAction{{Kind: ActionSendMessage, Content: "unmatched"}},
			},
		},
	}
	emitter := &recordingEmitter{}
	result := StartPlayback(m, nil, true, emitter).Run()

	if !result.Success {
		t.Fatalf("expected success, got err=%v", result.Err)
	}
	if len(emitter.messages) != 1 || emitter.messages[0] != "matched" {
		t.Fatalf("expected the then-branch to run, got %v", emitter.messages)
	}
}

func TestRegistryRejectsInvalidMacroAtRegistration(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(&ChatMacro{ID: "empty"}); err == nil {
		t.Error("expected registration of an empty macro to fail")
	}
	if _, err := r.Get("empty"); err == nil {
		t.Error("an invalid macro should never be retrievable")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	m := &ChatMacro{ID: "valid", Actions: []MacroAction{{Kind: ActionWait, Duration: time.Millisecond}}}
	id, err := r.Register(m)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "valid" {
		t.Errorf("expected round-tripped macro, got %+v", got)
	}
}

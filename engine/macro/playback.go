package macro

import (
	"fmt"
	"time"
)

// PlaybackState is §4.7's playback session lifecycle: Idle -> Playing
// -> {Paused -> Playing, Completed, Failed}.
type PlaybackState string

const (
	PlaybackIdle      PlaybackState = "idle"
	PlaybackPlaying   PlaybackState = "playing"
	PlaybackPaused    PlaybackState = "paused"
	PlaybackCompleted PlaybackState = "completed"
	PlaybackFailed    PlaybackState = "failed"
)

// Emitter performs the two externally-visible action kinds. A nil
// Emitter makes SendMessage/ExecuteCommand no-ops, which is enough to
// drive variable/loop/conditional logic in tests without a live chat
// session.
type Emitter interface {
	SendMessage(content, messageType string) error
	ExecuteCommand(command string) error
}

// ExecutionResult is §4.7's per-playback report.
type ExecutionResult struct {
	Success           bool
	ActionsExecuted   int
	Duration          time.Duration
	ModifiedVariables map[string]string
	Counters          map[string]int
	Err               error
}

type frame struct {
	actions       []MacroAction
	idx           int
	isLoopBody    bool
	loopRemaining int
}

func (f *frame) exhausted() bool { return f.idx >= len(f.actions) }

// PlaybackSession steps through a ChatMacro one action at a time,
// entering Conditional/Loop bodies inline rather than jumping by index.
type PlaybackSession struct {
	macro        *ChatMacro
	state        PlaybackState
	vars         map[string]string
	modified     map[string]string
	counters     map[string]int
	stack        []*frame
	abortOnError bool
	actionsRun   int
	startedAt    time.Time
	emitter      Emitter
	failure      error
}

// StartPlayback builds a PlaybackSession with the given initial
// variables (copied, never aliased to the caller's map).
func StartPlayback(m *ChatMacro, vars map[string]string, abortOnError bool, emitter Emitter) *PlaybackSession {
	initial := make(map[string]string, len(vars))
	for k, v := range vars {
		initial[k] = v
	}
	return &PlaybackSession{
		macro:        m,
		state:        PlaybackPlaying,
		vars:         initial,
		modified:     map[string]string{},
		counters:     map[string]int{},
		stack:        []*frame{{actions: m.Actions}},
		abortOnError: abortOnError,
		startedAt:    time.Now(),
		emitter:      emitter,
	}
}

// State reports the session's current lifecycle state.
func (p *PlaybackSession) State() PlaybackState { return p.state }

// ExecuteNextAction advances playback by one action, returning true
// once the session has reached Completed or Failed.
func (p *PlaybackSession) ExecuteNextAction() (bool, error) {
	if p.state == PlaybackCompleted || p.state == PlaybackFailed {
		return true, p.failure
	}
	if p.state != PlaybackPlaying {
		return false, fmt.Errorf("macro: cannot advance a %s session", p.state)
	}

	p.unwindExhaustedFrames()
	if len(p.stack) == 0 {
		p.state = PlaybackCompleted
		return true, nil
	}

	top := p.stack[len(p.stack)-1]
	action := top.actions[top.idx]
	top.idx++
	if action.Kind != ActionLoop && action.Kind != ActionConditional {
		p.actionsRun++
	}

	if err := p.runAction(action); err != nil {
		p.counters["errors"]++
		if !p.abortOnError {
			return false, nil
		}
		p.state = PlaybackFailed
		p.failure = err
		return true, err
	}

	p.unwindExhaustedFrames()
	if len(p.stack) == 0 {
		p.state = PlaybackCompleted
		return true, nil
	}
	return false, nil
}

// unwindExhaustedFrames pops frames with no actions left, re-pushing a
// loop body frame for each remaining iteration.
func (p *PlaybackSession) unwindExhaustedFrames() {
	for len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		if !top.exhausted() {
			return
		}
		p.stack = p.stack[:len(p.stack)-1]
		if top.isLoopBody && top.loopRemaining > 0 {
			p.stack = append(p.stack, &frame{
				actions:       top.actions,
				isLoopBody:    true,
				loopRemaining: top.loopRemaining - 1,
			})
			return
		}
	}
}

func (p *PlaybackSession) runAction(a MacroAction) error {
	switch a.Kind {
	case ActionSendMessage:
		content := substituteVariables(a.Content, p.vars)
		p.counters["messages_sent"]++
		if p.emitter != nil {
			return p.emitter.SendMessage(content, a.MessageType)
		}
		return nil

	case ActionExecuteCommand:
		p.counters["commands_executed"]++
		if p.emitter != nil {
			return p.emitter.ExecuteCommand(a.Command)
		}
		return nil

	case ActionWait:
		time.Sleep(a.Duration)
		p.counters["waits"]++
		return nil

	case ActionSetVariable:
		value := substituteVariables(a.VarValue, p.vars)
		p.vars[a.VarName] = value
		p.modified[a.VarName] = value
		return nil

	case ActionConditional:
		lhs := substituteVariables(a.Condition.LHS, p.vars)
		rhs := substituteVariables(a.Condition.RHS, p.vars)
		branch := a.Else
		if lhs == rhs {
			branch = a.Then
		}
		if len(branch) > 0 {
			p.stack = append(p.stack, &frame{actions: branch})
		}
		return nil

	case ActionLoop:
		if a.Iterations <= 0 || len(a.Body) == 0 {
			return nil
		}
		p.stack = append(p.stack, &frame{
			actions:       a.Body,
			isLoopBody:    true,
			loopRemaining: a.Iterations - 1,
		})
		return nil

	default:
		return fmt.Errorf("macro: unknown action kind %q", a.Kind)
	}
}

// Run drives the session to completion, returning its final result.
func (p *PlaybackSession) Run() ExecutionResult {
	for {
		done, err := p.ExecuteNextAction()
		if done {
			return ExecutionResult{
				Success:           err == nil,
				ActionsExecuted:   p.actionsRun,
				Duration:          time.Since(p.startedAt),
				ModifiedVariables: p.modified,
				Counters:          p.counters,
				Err:               err,
			}
		}
	}
}

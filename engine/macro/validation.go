package macro

import "github.com/mnemosdb/mnemos/engine/domain"

// Validate enforces §4.7's registration-time checks: a macro needs at
// least one action, and its Loop/Conditional nesting must not exceed
// MaxRecursionDepth. Depth is exceeded lazily at playback otherwise, so
// this runs once up front instead.
func Validate(m *ChatMacro) error {
	if len(m.Actions) == 0 {
		return domain.ErrMacroNoActions
	}
	if depth := nestingDepth(m.Actions); depth > m.maxDepth() {
		return domain.ErrMacroDepthExceeded
	}
	return nil
}

// nestingDepth returns the deepest Loop/Conditional nesting level
// reachable from actions, treating a bare top-level action list as
// depth 0.
func nestingDepth(actions []MacroAction) int {
	maxDepth := 0
	for _, a := range actions {
		var childDepth int
		switch a.Kind {
		case ActionLoop:
			childDepth = 1 + nestingDepth(a.Body)
		case ActionConditional:
			childDepth = 1 + max(nestingDepth(a.Then), nestingDepth(a.Else))
		default:
			continue
		}
		if childDepth > maxDepth {
			maxDepth = childDepth
		}
	}
	return maxDepth
}

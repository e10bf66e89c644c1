package automation

import (
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// ActionKind is what an action does.
type ActionKind string

const (
	ActionLock    ActionKind = "lock"
	ActionPublish ActionKind = "publish"
	ActionDelay   ActionKind = "delay"
)

// Action is one step of a rule. Delay is waited before the action runs.
type Action struct {
	Kind ActionKind

	Lock  string
	State sesame.LockState

	Topic   string
	Payload string
	Retain  bool

	Delay           time.Duration
	Parallel        bool
	ContinueOnError bool
}

// Rule runs Actions whenever Trigger fires On.
type Rule struct {
	Name    string
	Trigger string
	On      sesame.EventKind
	Actions []Action
}

// groups splits the actions into sequential groups of concurrent actions.
func (r Rule) groups() [][]Action {
	var out [][]Action
	for i, a := range r.Actions {
		if i == 0 || !a.Parallel {
			out = append(out, []Action{a})
			continue
		}
		out[len(out)-1] = append(out[len(out)-1], a)
	}
	return out
}

func defaultRuleName(trigger string, on sesame.EventKind, index int) string {
	return trigger + "/" + string(on) + "#" + strconv.Itoa(index)
}

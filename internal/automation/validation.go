package automation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// MaxDelay bounds a single action delay.
const MaxDelay = 30 * time.Minute

// Compile converts and validates the configured automations against the
// configured triggers and locks. Every problem is reported.
func Compile(cfg config.SesameConfig) ([]Rule, error) {
	triggers := make(map[string]bool, len(cfg.Triggers))
	locks := map[string]bool{cfg.Lock.ID: true}
	for _, t := range cfg.Triggers {
		triggers[t.Name] = true
		if t.Lock != nil {
			locks[t.Lock.ID] = true
		}
	}

	var (
		rules []Rule
		errs  []error
	)
	for i, ac := range cfg.Automations {
		rule, err := compileRule(i, ac, triggers, locks)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

func compileRule(index int, ac config.AutomationConfig, triggers, locks map[string]bool) (Rule, error) {
	field := fmt.Sprintf("sesame.automations[%d]", index)

	on := sesame.EventKind(strings.ToLower(ac.On))
	var problems []string
	switch {
	case ac.Trigger == "":
		problems = append(problems, "trigger is required")
	case !triggers[ac.Trigger]:
		problems = append(problems, fmt.Sprintf("unknown trigger %q", ac.Trigger))
	}
	if !slices.Contains(sesame.EventKinds, on) {
		problems = append(problems, fmt.Sprintf("on %q is not one of lock, unlock, open, close", ac.On))
	}
	if len(ac.Actions) == 0 {
		problems = append(problems, "at least one action is required")
	}
	if len(problems) > 0 {
		return Rule{}, fmt.Errorf("%w: %s: %s", ErrInvalidRule, field, strings.Join(problems, ", "))
	}

	rule := Rule{Name: ac.Name, Trigger: ac.Trigger, On: on}
	if rule.Name == "" {
		rule.Name = defaultRuleName(ac.Trigger, on, index)
	}
	for j, c := range ac.Actions {
		a, err := compileAction(c, locks)
		if err != nil {
			return Rule{}, fmt.Errorf("%s.actions[%d]: %w", field, j, err)
		}
		rule.Actions = append(rule.Actions, a)
	}
	return rule, nil
}

func compileAction(c config.ActionConfig, locks map[string]bool) (Action, error) {
	a := Action{
		Delay:           c.Delay,
		Parallel:        c.Parallel,
		ContinueOnError: c.ContinueOnError,
	}
	if c.Delay < 0 || c.Delay > MaxDelay {
		return Action{}, fmt.Errorf("%w: delay must be between 0 and %s", ErrInvalidAction, MaxDelay)
	}

	switch {
	case c.Lock != "" && c.Topic != "":
		return Action{}, fmt.Errorf("%w: only one of lock and topic may be set", ErrInvalidAction)

	case c.Lock != "":
		if !locks[c.Lock] {
			return Action{}, fmt.Errorf("%w: unknown lock %q", ErrInvalidAction, c.Lock)
		}
		state, err := sesame.ParseLockState(c.State)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		a.Kind, a.Lock, a.State = ActionLock, c.Lock, state

	case c.Topic != "":
		if strings.ContainsAny(c.Topic, "+#") {
			return Action{}, fmt.Errorf("%w: topic %q contains wildcards", ErrInvalidAction, c.Topic)
		}
		a.Kind, a.Topic, a.Payload, a.Retain = ActionPublish, c.Topic, c.Payload, c.Retain

	case c.Delay > 0:
		a.Kind = ActionDelay

	default:
		return Action{}, fmt.Errorf("%w: one of lock, topic or delay is required", ErrInvalidAction)
	}
	return a, nil
}

package sesame

import "fmt"

// Registry is the ordered set of configured Triggers. It is populated at
// configuration time and never changes once the server has started.
type Registry struct {
	triggers []*Trigger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a trigger. Names and addresses must be unique, and a lock
// entity may be bound to only one trigger.
func (r *Registry) Add(cfg TriggerConfig) (*Trigger, error) {
	if cfg.Address.IsZero() {
		return nil, fmt.Errorf("%w: trigger %q has no address", ErrInvalidAddress, cfg.Name)
	}
	t := newTrigger(len(r.triggers), cfg)
	for _, existing := range r.triggers {
		switch {
		case existing.address == t.address:
			return nil, fmt.Errorf("%w: address %s already used by %q", ErrDuplicateTrigger, t.address, existing.name)
		case existing.name == t.name:
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateTrigger, t.name)
		case t.lock != nil && existing.lock != nil && existing.lock.ID == t.lock.ID:
			return nil, fmt.Errorf("%w: lock %q already bound to %q", ErrDuplicateTrigger, t.lock.ID, existing.name)
		}
	}
	r.triggers = append(r.triggers, t)
	return t, nil
}

// Resolve returns the trigger configured for addr, or nil.
func (r *Registry) Resolve(addr PeerAddress) *Trigger {
	for _, t := range r.triggers {
		if t.address == addr {
			return t
		}
	}
	return nil
}

// Contains reports whether addr belongs to a configured trigger.
func (r *Registry) Contains(addr PeerAddress) bool {
	return r.Resolve(addr) != nil
}

// ByName returns the trigger with the given name, or nil.
func (r *Registry) ByName(name string) *Trigger {
	for _, t := range r.triggers {
		if t.name == name {
			return t
		}
	}
	return nil
}

// ByLock returns the trigger bound to the lock with the given ID, or nil.
func (r *Registry) ByLock(id string) *Trigger {
	for _, t := range r.triggers {
		if t.lock != nil && t.lock.ID == id {
			return t
		}
	}
	return nil
}

// At returns the trigger at a registration index.
func (r *Registry) At(i int) *Trigger {
	if i < 0 || i >= len(r.triggers) {
		return nil
	}
	return r.triggers[i]
}

// All returns the triggers in registration order. The slice must not be
// modified.
func (r *Registry) All() []*Trigger {
	return r.triggers
}

// Len returns the number of triggers.
func (r *Registry) Len() int {
	return len(r.triggers)
}

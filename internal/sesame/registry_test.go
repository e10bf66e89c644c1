package sesame

import (
	"errors"
	"testing"
)

func TestRegistryAddResolve(t *testing.T) {
	r := NewRegistry()
	a := MustParseAddress("aa:00:00:00:00:01")
	b := MustParseAddress("aa:00:00:00:00:02")

	ta, err := r.Add(TriggerConfig{Name: "a", Address: a})
	if err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	tb, err := r.Add(TriggerConfig{Name: "b", Address: b, Lock: &LockEntity{ID: "lock-b"}})
	if err != nil {
		t.Fatalf("Add(b) error = %v", err)
	}

	if r.Resolve(a) != ta || r.Resolve(b) != tb {
		t.Error("Resolve returned wrong trigger")
	}
	if r.Resolve(MustParseAddress("aa:00:00:00:00:03")) != nil {
		t.Error("Resolve of unlisted address returned a trigger")
	}
	if !r.Contains(a) {
		t.Error("Contains(a) = false")
	}
	if r.ByName("b") != tb || r.ByLock("lock-b") != tb || r.ByLock("nope") != nil {
		t.Error("lookup by name or lock failed")
	}
	if ta.Kind() != TriggerShared || tb.Kind() != TriggerBound {
		t.Errorf("kinds = %v, %v", ta.Kind(), tb.Kind())
	}

	all := r.All()
	if len(all) != 2 || all[0] != ta || all[1] != tb {
		t.Error("All() not in registration order")
	}
	if r.At(1) != tb || r.At(2) != nil {
		t.Error("At() wrong")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	addr := MustParseAddress("aa:00:00:00:00:01")
	tests := []struct {
		name   string
		second TriggerConfig
	}{
		{"same address", TriggerConfig{Name: "other", Address: addr}},
		{"same name", TriggerConfig{Name: "door", Address: MustParseAddress("aa:00:00:00:00:02")}},
		{"same lock", TriggerConfig{Name: "other", Address: MustParseAddress("aa:00:00:00:00:03"), Lock: &LockEntity{ID: "l1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if _, err := r.Add(TriggerConfig{Name: "door", Address: addr, Lock: &LockEntity{ID: "l1"}}); err != nil {
				t.Fatalf("first Add() error = %v", err)
			}
			if _, err := r.Add(tt.second); !errors.Is(err, ErrDuplicateTrigger) {
				t.Errorf("second Add() error = %v, want ErrDuplicateTrigger", err)
			}
			if r.Len() != 1 {
				t.Errorf("Len() = %d, want 1", r.Len())
			}
		})
	}
}

func TestRegistryRequiresAddress(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add(TriggerConfig{Name: "x"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Add() error = %v, want ErrInvalidAddress", err)
	}
}

func TestTriggerDefaultName(t *testing.T) {
	r := NewRegistry()
	tr, err := r.Add(TriggerConfig{Address: MustParseAddress("aa:00:00:00:00:09")})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "aa:00:00:00:00:09" {
		t.Errorf("Name() = %q", tr.Name())
	}
}

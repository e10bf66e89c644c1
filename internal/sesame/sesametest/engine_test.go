package sesametest

import (
	"slices"
	"testing"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

var peer = sesame.MustParseAddress("c0:00:00:00:00:01")

func TestEngineRecordsReentrantCalls(t *testing.T) {
	e := NewEngine()
	e.SetHandlers(sesame.Handlers{
		OnConnect: func(addr sesame.PeerAddress) {
			e.HasSession(addr)
			e.SendStatus(&addr, sesame.FrameFor(sesame.LockLocked)) //nolint:errcheck // Recorded, not checked
		},
	})

	e.SimulateConnect(peer)
	if got := e.Reentries(); !slices.Equal(got, []string{"HasSession", "SendStatus"}) {
		t.Errorf("Reentries() = %v", got)
	}

	// outside a callback the same calls are fine
	e.HasSession(peer)
	if got := e.Reentries(); len(got) != 2 {
		t.Errorf("Reentries() after plain call = %v", got)
	}
}

func TestEngineIgnoresCallsFromOtherGoroutines(t *testing.T) {
	e := NewEngine()
	e.SetHandlers(sesame.Handlers{
		OnDisconnect: func(addr sesame.PeerAddress, _ int) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				e.Disconnect(addr) //nolint:errcheck // Fake never fails
			}()
			<-done
		},
	})

	e.SimulateDisconnect(peer, 19)
	if got := e.Reentries(); len(got) != 0 {
		t.Errorf("Reentries() = %v, want none", got)
	}
}

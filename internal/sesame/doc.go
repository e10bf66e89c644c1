// Package sesame binds configured lock/trigger endpoints to remote SESAME
// peers that reach this server over a session-oriented BLE protocol.
//
// The wireless engine (pairing, encryption, framing, advertising) is an
// external collaborator described by the Engine interface. This package
// owns what sits on top of it:
//
//   - Registry: the ordered set of Triggers, one per configured peer address
//   - Trigger: one peer's observable state and optional bound LockEntity
//   - Synchronizer: which lock status frame goes to which peer
//   - Dispatcher: the FIFO queue that moves engine callbacks off the
//     engine's own call stack
//   - Server: setup, secret lifecycle, reset and the poll loop
//
// # Concurrency
//
// All core state is read and written on the dispatch goroutine started by
// Server.Run. Engine callbacks only capture their arguments and call
// Dispatcher.Defer. Callers on other goroutines (HTTP handlers, MQTT
// subscriptions) go through Dispatcher.Call, which queues a closure and
// waits for it to finish.
//
// # Lock state ownership
//
// A Trigger with a bound LockEntity is the private source of truth for its
// peer. A Trigger without one mirrors the server-wide shared lock state;
// changes to the shared state are broadcast to every unbound Trigger that
// currently holds a session.
//
// # Usage
//
//	srv, err := sesame.NewServer(sesame.ServerOptions{
//	    UUID:   cfg.Sesame.UUID,
//	    Engine: link,
//	    Store:  secrets,
//	})
//	srv.AddTrigger(sesame.TriggerConfig{Name: "front-door", Address: addr})
//	if err := srv.Setup(ctx); err != nil {
//	    return err
//	}
//	go srv.Run(ctx)
package sesame

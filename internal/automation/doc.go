// Package automation runs configured actions when a trigger fires an event.
//
// A rule names a trigger, one of its events (lock, unlock, open, close)
// and an ordered list of actions:
//
//	automations:
//	  - trigger: hall-remote
//	    on: unlock
//	    actions:
//	      - lock: shed
//	        state: unlocked
//	      - topic: "home/hall/light/set"
//	        payload: '{"on":true,"by":"{tag}"}'
//	        parallel: true
//	      - delay: 5m
//	      - lock: shed
//	        state: locked
//
// Actions form groups: an action with parallel set joins the previous
// action's group, otherwise it starts a new one. Groups run in order and
// the actions of a group run concurrently. A failed action stops the rule
// unless it has continue_on_error.
//
// Handlers run on the sesame dispatch goroutine and only enqueue; rules
// execute one at a time on the engine's own goroutine, so a lock action may
// call back into the server.
//
// Publish payloads may reference the event with {trigger}, {event}, {tag}
// and {address}.
package automation

// Package daemon supervises the BLE engine daemon as a child process.
//
// The daemon owns the radio and speaks to the server over MQTT (see
// package mqttlink). When it runs on the same host the server can start it,
// capture its output into the server log, restart it with exponential
// backoff when it exits and kill it when a watchdog reports it unhealthy.
//
//	sup, err := daemon.New(daemon.Options{
//	    Binary:   "/usr/local/bin/sesame-bled",
//	    Args:     []string{"--hci", "hci0"},
//	    Watchdog: func(ctx context.Context) error { ... },
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
//
// An exit status of 78 (EX_CONFIG) means the daemon cannot run with its
// configuration and is not restarted.
package daemon

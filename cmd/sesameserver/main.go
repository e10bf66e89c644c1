// Gray Logic SESAME server.
//
// This is the entry point for the SESAME lock server: it pairs with BLE
// remotes and keypads through the engine daemon, forwards their lock and
// door events, and keeps every connected peer's lock display in sync.
//
// Commands:
//
//	sesameserver [serve]      run the server (default)
//	sesameserver reset        erase the pairing secret offline
//	sesameserver token        mint an API access token
//	sesameserver check-config validate the configuration
//	sesameserver version      print build information
package main

import (
	"fmt"
	"os"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package config loads and validates the sesame server configuration.
//
// Loading order:
//  1. Hard-coded defaults
//  2. YAML file values
//  3. SESAME_* environment variables
//
// Validation collects every problem and reports them together.
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should come from the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/sesame.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, t := range cfg.Sesame.Triggers {
//	    addr, _ := t.PeerAddress()
//	    fmt.Println(t.Name, addr)
//	}
package config

// Package config handles loading and validating DKN cloud bridge configuration.
//
// Configuration is resolved in three layers: built-in defaults, then the
// YAML file, then DKNBRIDGE_* environment variables. Validate runs after
// all three so a config hole is caught at startup, not mid-poll.
//
// Sensitive values (the cloud password, the API token) belong in
// environment variables rather than the file; the file itself should be
// chmod 0600. The cloud password is consumed once at login and zeroed
// from memory.
//
// Load is called exactly once at startup:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Durations in the sync section are plain seconds or milliseconds in
// YAML; the Get* helpers convert them to time.Duration for callers.
package config

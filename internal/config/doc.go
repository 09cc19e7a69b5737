// Package config loads, defaults, and validates the gateway configuration.
//
// Configuration is a single YAML document. Values may reference the
// environment with ${VAR} or ${VAR:-default}. The service table is read
// once at startup; the Watcher delivers later edits so that tunable
// values such as rate limits and the log level can be applied at runtime.
package config

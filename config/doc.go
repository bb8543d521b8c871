// Package config loads the health pool configuration from a YAML file and
// environment variables. It covers the admin server, logging, the pool-wide
// health check defaults and the backends registered at startup, each of
// which may override the pool defaults.
package config

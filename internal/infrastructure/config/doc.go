// Package config loads and validates Gatewise Core configuration.
//
// Configuration comes from three layers, each overriding the previous:
// built-in defaults, a YAML file, and GATEWISE_* environment variables.
// Secrets (MQTT credentials, telemetry tokens) should always come from the
// environment rather than the file.
package config

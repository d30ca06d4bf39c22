// Package config loads the KOL Agent runtime configuration. Values are layered
// as built-in defaults, an optional YAML file and KOL_ prefixed environment
// variables, with the legacy variable names of earlier deployments honoured as
// fallbacks for credentials.
package config

// Package agent dispatches MCP tool invocations. Each tool validates its
// arguments, calls the configured chain and social clients, and returns a JSON
// payload. Every invocation is recorded to the history repository and counted
// in the Prometheus metrics.
package agent

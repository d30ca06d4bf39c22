// Package api exposes the REST surface of the agent: synchronous tool calls,
// the asynchronous task queue, health and metrics endpoints, and the
// streamable MCP transport mounted on the same listener.
package api

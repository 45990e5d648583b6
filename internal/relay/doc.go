// Package relay is the operator-facing web relay. Each request is tied to a
// session by the caller's network origin and forwarded only to the agent
// running at that same origin, so operators see their own bench and nothing
// else.
package relay

// Package handler implements the agent's HTTP API.
//
// The relay is the only expected caller. Every response is JSON:
//
//	POST /detect           scan all buses and identify instruments
//	POST /control          run one action against one instrument
//	GET  /status           liveness and bus readiness
//	GET  /debug/resources  raw enumeration, no identification
//
// Command failures are not HTTP failures: /control answers 200 with
// success=false and a message. Only malformed requests get a 4xx, and only a
// bus that cannot enumerate turns /detect into a 503.
//
// Middleware provides panic recovery, CORS and request logging.
package handler

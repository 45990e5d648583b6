// Package agent is the Local Control Agent: it discovers instruments on the
// machine's buses and runs single actions against them. Every action opens
// its instrument, acts and closes again; no handle outlives a request.
package agent

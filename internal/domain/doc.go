// Package domain defines the value types shared by the agent and the relay.
//
// # Resources and identities
//
// TransportResource is an enumerated bus address whose bus kind is inferred
// from the VISA prefix. DeviceIdentity is the parsed answer to an identity
// query, and DeviceEntry is the row a discover call returns for each
// resource, labelled by identity or by a bus heuristic when nothing answered.
//
// # Commands
//
// CommandRequest and CommandResult are the wire shapes of a control call.
// Measurement is a float64 that encodes NaN as JSON null so an unavailable
// reading survives a round trip.
package domain

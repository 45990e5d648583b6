// Package session tracks one record per operator network origin on the relay.
//
// A session is created on first contact, refreshed on every forwarded call
// and removed once idle past the timeout. Expiry is silent: the next contact
// from the same origin simply creates a fresh session with a new token.
//
// The Registry locks its map only to add or remove entries; reads and
// updates of one origin take that entry's own mutex, so traffic from one
// operator never waits on another's.
package session

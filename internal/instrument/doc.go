// Package instrument holds the per-category driver contracts, the built-in
// drivers, and the registry that picks a driver from an identity string.
//
// # Lifecycle
//
// Drivers never own a connection's lifetime. Dial opens the resource, asks
// for its identity, resolves a constructor through the Registry and runs the
// optional Connector hook; Use wraps Dial so the connection is closed on
// every exit path:
//
//	err := instrument.Use(ctx, provider, registry, domain.CategoryDCSource, addr, 10*time.Second,
//		func(inst instrument.Instrument) error {
//			return inst.(instrument.DCSource).OutputOn(1)
//		})
//
// # Failure semantics
//
// Mutating calls go through a Fallback: an ordered list of vendor command
// spellings where the first one the transport accepts wins. When all are
// refused the caller gets a *CommandRejectedError listing every attempt.
// Measurements never fail; an unreadable value is NaN and surfaces as an
// unavailable domain.Measurement.
//
// Range-limited setters validate locally and return *OutOfRangeError before
// anything is written to the bus.
package instrument

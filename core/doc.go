// Package core provides the domain types shared by every simlink component:
//
//   - EngineState and StateMask (concrete engine states and state predicates)
//   - Type, Field, Template and Space (typed, ordered field schemas and values)
//   - Value and Args (literal or generator request values)
//   - Status, EngineInfo and Schema (engine snapshots)
//   - Channel (the request/response link to one engine process)
//   - the error taxonomy (validation, timeout, transport)
//
// The type boundary lives here as well: Coerce converts caller values to the
// declared field types on the way out, Decode maps engine JSON to native Go
// values on the way in.
//
// An engine reporting StateError is data, not an error. Functions in this
// package only fail for invalid input or malformed engine replies.
package core

// Package contracts defines the wire-level vocabulary shared by every hostel service.
//
// This package defines:
//   - Service: identifiers of the deployed microservices
//   - MessageType: the type tag that selects an outbound transport
//   - Envelope and Properties: a message as placed on the broker
//   - the header carrier convention (traceparent, X-User-Id, X-User-Roles)
//   - the dispatch error taxonomy
//
// Header names and the traceparent layout are bit-exact with the other services and
// must not change.
package contracts

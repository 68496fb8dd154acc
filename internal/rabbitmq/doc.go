// Package rabbitmq is the broker boundary of the hostel messaging library.
//
// This package includes:
//   - Connection and Channel: the broker primitives the rest of the library depends on
//   - ConnectionManager: dials with address failover and reconnects with backoff
//   - ChannelPool: hands out single-owner channels for publishing
//   - Publisher: fire-and-forget publishing, optionally inside a channel transaction
//   - ReplyClient: request/reply over the direct reply-to pseudo queue
//   - Consumer: queue consumption on dedicated channels, ack on success and nack on failure
//   - TopologyManager: declares exchanges, quorum queues and bindings
//
// Nothing in this package retries a publish. A failed publish is reported to the
// caller, who decides whether sending again is safe.
package rabbitmq

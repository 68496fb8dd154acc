// Package messaging sends typed messages to the transports configured for them and
// binds handlers to configured receivers.
//
// The pieces:
//   - Resolver: picks the transport of a message type or a destination service.
//     Configs are scanned in registration order and the first match wins.
//   - Dispatcher: the Sender that builds an envelope per call, stamps it with the
//     caller's identity and publishes it once. Failures come back as
//     *contracts.DispatchError.
//   - LoggingSender: a Sender decorator that logs every operation.
//   - Listener: consumes a receiver's queue through the tracing wrapper.
//
// Example usage:
//
//	resolver, err := messaging.NewResolver(reg)
//	if err != nil {
//		return err
//	}
//	var sender messaging.Sender = messaging.NewDispatcher(resolver)
//	sender = messaging.NewLoggingSender(sender, logger)
//
//	err = sender.Send(ctx, "BOOK", bookingID.String(), request)
//
//	slots, err := messaging.Request[[]Slot](ctx, sender, "GET_SLOTS", requestID, query)
package messaging

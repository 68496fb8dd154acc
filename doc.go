// Package hostel connects hostel services to each other over RabbitMQ.
//
// A Client is built from the rabbitmq section of the service configuration. Each
// configured service profile gets its own broker connection. Outbound messages
// are routed by type tag to the sender configured for it, inbound messages are
// consumed by named listeners, and the caller's identity and trace travel in
// message headers.
//
//	client, err := hostel.NewClientFromFile(ctx, "hostel.yaml")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.Send(ctx, "BOOK", bookingID, req)
package hostel

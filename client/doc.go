// Package client is the caller side of a slotbox server.
//
// A caller names an endpoint with a reference of the form "<address>/<id>",
// where address is a unix socket path or a host:port pair:
//
//	/run/slotbox.sock/3
//	127.0.0.1:7070/3
//	unix:///run/slotbox.sock/3
//	tcp://127.0.0.1:7070/3
//
// and then drives one handle through the open/bind/send-or-receive/close
// sequence:
//
//	ep, err := client.ParseEndpoint("/run/slotbox.sock/3")
//	c := client.New(ep)
//	defer c.Close()
//
//	h, err := c.Open(ctx)
//	defer h.Close(ctx)
//	err = h.SelectChannel(ctx, 7)
//	n, err := h.Send(ctx, []byte("hello"))
//	msg, err := h.Receive(ctx, slotbox.DefaultBufferSize)
//
// Errors wrap the same sentinels as package slotbox, so errors.Is works
// across the process boundary. Transport failures wrap slotbox.ErrIOFailure.
package client

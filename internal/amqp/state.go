package amqp

// ConnectionState is a point-in-time view of the broker connection. It is
// replaced wholesale on every phase change so a snapshot never observes a
// half-updated state.
type ConnectionState struct {
	Host        string
	Connected   bool
	ChannelOpen bool
	ConsumerTag string

	// Terminating marks an intentional shutdown: the absence of a
	// connection must then not be reported as unhealthy.
	Terminating bool
}

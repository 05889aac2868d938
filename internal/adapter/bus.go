package adapter

// Bus is the raw message channel to an embedded vendor player. The iframe
// adapters speak their vendor's postMessage wire format over it; transport
// (websocket bridge, in-memory pipe) is the caller's concern.
type Bus interface {
	// Post delivers one frame to the embedded player. Posting while no
	// embed is attached is a silent no-op.
	Post(payload []byte) error
	// Messages yields frames from the embedded player. The channel is
	// closed when the bus is closed.
	Messages() <-chan []byte
	Close() error
}

package core

// Frame is one encoded event pushed to a subscriber.
type Frame []byte

// SignalConnection is a server-to-client event channel such as the
// websocket event stream. TrySend never blocks; the adapter owns the
// connection and must Close it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

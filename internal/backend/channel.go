package backend

import "context"

// Channel is one full-duplex connection to the gateway. Send may be called
// from many goroutines. Run blocks, invoking handle for every received
// object on the channel's own goroutine, until the connection ends or ctx is
// cancelled. handle must not block.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Run(ctx context.Context, handle func(Object)) error
	Close() error
}

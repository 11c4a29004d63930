package link

import (
	"context"

	"github.com/temoto/rfdlink/mavconn"
)

// MavconnOpener dials real transport with auto reconnect enabled.
type MavconnOpener struct {
	Options mavconn.Options
}

func (o *MavconnOpener) Open(ctx context.Context, address string, baud int) (Conn, error) {
	opt := o.Options
	opt.Baud = baud
	opt.AutoReconnect = true
	c, err := mavconn.Dial(ctx, address, opt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

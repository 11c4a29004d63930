// Package mavconn is message level MAVLink connection over transport.Port:
// open, bounded wait for message, non-blocking poll, send.
package mavconn

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavlink"
	"github.com/temoto/rfdlink/transport"
)

const (
	DefaultReadSlice = 100 * time.Millisecond
	pollWait         = time.Millisecond
	readBufferSize   = 512
)

// ErrNoMessage is returned when bounded wait or poll found no matching message.
// It is not a fault.
var ErrNoMessage = fmt.Errorf("no message")

type Options struct {
	transport.Options
	Dialect *mavlink.Dialect
	Version mavlink.Version
	SysID   byte
	CompID  byte
	// ReadSlice bounds single blocking read, so context cancel is noticed.
	ReadSlice time.Duration
}

type Conn struct {
	port   transport.Port
	log    *log2.Log
	opt    Options
	enc    *mavlink.Encoder
	parser *mavlink.Parser
	buf    []byte
	stat   Stat
}

func Dial(ctx context.Context, address string, opt Options) (*Conn, error) {
	if opt.Dialect == nil {
		return nil, errors.NotValidf("code error mavconn Dialect=nil")
	}
	port, err := transport.Open(ctx, address, opt.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewConn(port, opt), nil
}

// NewConn takes ownership of port.
func NewConn(port transport.Port, opt Options) *Conn {
	if opt.Version == 0 {
		opt.Version = mavlink.V2
	}
	if opt.ReadSlice <= 0 {
		opt.ReadSlice = DefaultReadSlice
	}
	return &Conn{
		port:   port,
		log:    opt.Log,
		opt:    opt,
		enc:    mavlink.NewEncoder(opt.Dialect, opt.Version, opt.SysID, opt.CompID),
		parser: mavlink.NewParser(opt.Dialect),
		buf:    make([]byte, readBufferSize),
	}
}

func (c *Conn) Close() error { return c.port.Close() }

func (c *Conn) String() string { return c.port.String() }

func (c *Conn) ParserStat() *mavlink.ParserStat { return &c.parser.Stat }

func (c *Conn) Stat() *Stat { return &c.stat }

// WaitMessage blocks until message with id arrives, timeout passes or ctx is done.
// Other messages received meanwhile are discarded.
func (c *Conn) WaitMessage(ctx context.Context, id uint32, timeout time.Duration) (mavlink.Message, *mavlink.Frame, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		if m, f, ok := c.next(id); ok {
			return m, f, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		now := time.Now()
		if !now.Before(deadline) {
			return nil, nil, ErrNoMessage
		}
		sliceEnd := now.Add(c.opt.ReadSlice)
		if sliceEnd.After(deadline) {
			sliceEnd = deadline
		}
		if _, err := c.read(sliceEnd); err != nil && !transport.IsTimeout(err) {
			return nil, nil, errors.Annotatef(err, "wait msgid=%d", id)
		}
	}
}

// PollMessage returns first message with id among already received bytes, does not wait for more.
// Input is drained until a read comes back empty; a sender that never pauses
// is cut off after ReadSlice so the poll stays bounded.
// Returns ErrNoMessage if there is none.
func (c *Conn) PollMessage(id uint32) (mavlink.Message, *mavlink.Frame, error) {
	budget := time.Now().Add(c.opt.ReadSlice)
	for {
		if m, f, ok := c.next(id); ok {
			return m, f, nil
		}
		now := time.Now()
		if !now.Before(budget) {
			return nil, nil, ErrNoMessage
		}
		n, err := c.read(now.Add(pollWait))
		if transport.IsTimeout(err) || (err == nil && n == 0) {
			return nil, nil, ErrNoMessage
		}
		if err != nil {
			return nil, nil, errors.Annotatef(err, "poll msgid=%d", id)
		}
	}
}

func (c *Conn) Send(m mavlink.Message) error {
	b, err := c.enc.Encode(m)
	if err != nil {
		return errors.Trace(err)
	}
	if err = helpers.WriteAll(c.port, b); err != nil {
		return errors.Annotatef(err, "send %s", m.Name())
	}
	c.stat.Send.Register(len(b))
	if c.log.Enabled(log2.LDebug) {
		c.log.Debugf("mavconn: sent %v seq=%d", m, c.enc.Seq()-1)
	}
	return nil
}

func (c *Conn) next(id uint32) (mavlink.Message, *mavlink.Frame, bool) {
	for {
		f, m, ok := c.parser.Next()
		if !ok {
			return nil, nil, false
		}
		if f.MsgID == id {
			return m, f, true
		}
	}
}

func (c *Conn) read(deadline time.Time) (int, error) {
	if err := c.port.SetReadDeadline(deadline); err != nil {
		return 0, errors.Annotate(err, "SetReadDeadline")
	}
	n, err := c.port.Read(c.buf)
	if n > 0 {
		c.stat.Recv.Register(n)
		_, _ = c.parser.Write(c.buf[:n])
	}
	return n, err
}

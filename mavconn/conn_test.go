package mavconn

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavlink"
	"github.com/temoto/rfdlink/transport"
)

const testHeartbeatV1 = "fe09000101000000000002035104037ddd"

type chanPort struct {
	sync.Mutex
	rx       chan []byte
	tx       bytes.Buffer
	deadline time.Time
	writeErr error
	closed   bool
}

func newChanPort() *chanPort { return &chanPort{rx: make(chan []byte, 256)} }

func (p *chanPort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(b, chunk), nil
	default:
	}
	p.Lock()
	deadline := p.deadline
	p.Unlock()
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timeout = time.After(time.Until(deadline))
	}
	select {
	case chunk := <-p.rx:
		return copy(b, chunk), nil
	case <-timeout:
		return 0, transport.ErrTimeout("chanPort timeout")
	}
}

func (p *chanPort) Write(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.tx.Write(b)
}

func (p *chanPort) SetReadDeadline(t time.Time) error {
	p.Lock()
	p.deadline = t
	p.Unlock()
	return nil
}

func (p *chanPort) Close() error   { p.closed = true; return nil }
func (p *chanPort) String() string { return "chan" }

func testConn(t testing.TB) (*Conn, *chanPort) {
	d, err := mavlink.NewLinkDialect(mavlink.DefaultRfdTestID)
	require.NoError(t, err)
	port := newChanPort()
	opt := Options{Dialect: d, SysID: 255, ReadSlice: 10 * time.Millisecond}
	opt.Log = log2.NewTest(t, log2.LDebug)
	return NewConn(port, opt), port
}

func TestWaitMessage(t *testing.T) {
	t.Parallel()

	c, port := testConn(t)
	hb := helpers.MustHex(testHeartbeatV1)
	// split frame and surround with unrelated message
	rfd := helpers.MustHex("fd01000005ff0010a4000791f8")
	port.rx <- rfd
	port.rx <- hb[:5]
	port.rx <- hb[5:]

	m, f, err := c.WaitMessage(context.Background(), mavlink.HeartbeatID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(1), f.SysID)
	assert.Equal(t, byte(1), f.CompID)
	assert.Equal(t, uint8(2), m.(*mavlink.Heartbeat).Type)
	assert.Equal(t, int64(3), c.Stat().Recv.Count.Value())
	assert.Equal(t, int64(2), c.ParserStat().Frames.Value())
}

func TestWaitMessageTimeout(t *testing.T) {
	t.Parallel()

	c, _ := testConn(t)
	start := time.Now()
	_, _, err := c.WaitMessage(context.Background(), mavlink.HeartbeatID, 50*time.Millisecond)
	assert.Equal(t, ErrNoMessage, err)
	assert.True(t, time.Since(start) >= 50*time.Millisecond)
}

func TestWaitMessageCancel(t *testing.T) {
	t.Parallel()

	c, _ := testConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	_, _, err := c.WaitMessage(ctx, mavlink.HeartbeatID, 5*time.Second)
	assert.Equal(t, context.Canceled, err)
	assert.True(t, time.Since(start) < time.Second)
}

func TestPollMessage(t *testing.T) {
	t.Parallel()

	c, port := testConn(t)
	_, _, err := c.PollMessage(mavlink.HeartbeatID)
	assert.Equal(t, ErrNoMessage, err)

	hb := helpers.MustHex(testHeartbeatV1)
	two := append(append([]byte(nil), hb...), hb...)
	port.rx <- two
	_, _, err = c.PollMessage(mavlink.HeartbeatID)
	require.NoError(t, err)
	// second one stays buffered
	_, _, err = c.PollMessage(mavlink.HeartbeatID)
	require.NoError(t, err)
	_, _, err = c.PollMessage(mavlink.HeartbeatID)
	assert.Equal(t, ErrNoMessage, err)
}

func TestPollMessageDrain(t *testing.T) {
	t.Parallel()

	c, port := testConn(t)
	c.opt.ReadSlice = 5 * time.Second
	rfd := helpers.MustHex("fd01000005ff0010a4000791f8")
	for i := 0; i < 200; i++ {
		port.rx <- rfd
	}
	port.rx <- helpers.MustHex(testHeartbeatV1)

	_, f, err := c.PollMessage(mavlink.HeartbeatID)
	require.NoError(t, err)
	assert.Equal(t, mavlink.HeartbeatID, f.MsgID)
	assert.Equal(t, int64(201), c.Stat().Recv.Count.Value())
}

// floodPort never runs out of input.
type floodPort struct{ chunk []byte }

func (p *floodPort) Read(b []byte) (int, error)      { return copy(b, p.chunk), nil }
func (p *floodPort) Write(b []byte) (int, error)     { return len(b), nil }
func (p *floodPort) SetReadDeadline(time.Time) error { return nil }
func (p *floodPort) Close() error                    { return nil }
func (p *floodPort) String() string                  { return "flood" }

func TestPollMessageFlood(t *testing.T) {
	t.Parallel()

	d, err := mavlink.NewLinkDialect(mavlink.DefaultRfdTestID)
	require.NoError(t, err)
	port := &floodPort{chunk: helpers.MustHex("fd01000005ff0010a4000791f8")}
	c := NewConn(port, Options{Dialect: d, ReadSlice: 20 * time.Millisecond})
	start := time.Now()
	_, _, err = c.PollMessage(mavlink.HeartbeatID)
	assert.Equal(t, ErrNoMessage, err)
	assert.True(t, time.Since(start) < time.Second, "poll took %s", time.Since(start))
	assert.True(t, c.Stat().Recv.Count.Value() > 1)
}

func TestSend(t *testing.T) {
	t.Parallel()

	c, port := testConn(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(&mavlink.RfdTest{MsgID: mavlink.DefaultRfdTestID, RandomDeger: byte(i)}))
	}
	port.tx.Reset()
	require.NoError(t, c.Send(&mavlink.RfdTest{MsgID: mavlink.DefaultRfdTestID, RandomDeger: 7}))
	assert.Equal(t, helpers.MustHex("fd01000005ff0010a4000791f8"), port.tx.Bytes())
	assert.Equal(t, int64(6), c.Stat().Send.Count.Value())

	port.writeErr = fmt.Errorf("radio gone")
	err := c.Send(&mavlink.RfdTest{MsgID: mavlink.DefaultRfdTestID})
	require.Error(t, err)
	assert.Equal(t, port.writeErr, errors.Cause(err))

	require.NoError(t, c.Close())
	assert.True(t, port.closed)
}

func TestDialValidate(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "udpin:127.0.0.1:0", Options{})
	assert.True(t, errors.IsNotValid(err))
}

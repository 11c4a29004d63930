package transport

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/log2"
)

type openFunc func(context.Context) (Port, error)

// reconnectPort closes underlying port on I/O error and reopens it on next operation.
// Read deadline is applied to reopened port.
type reconnectPort struct {
	mu       sync.Mutex
	current  Port
	address  string
	open     openFunc
	log      *log2.Log
	deadline time.Time
	closed   bool
	reopens  uint32
}

func newReconnectPort(p Port, address string, open openFunc, log *log2.Log) *reconnectPort {
	return &reconnectPort{current: p, address: address, open: open, log: log}
}

func (p *reconnectPort) port() (Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosing
	}
	if p.current != nil {
		return p.current, nil
	}
	// open applies OpenTimeout; read deadline only bounds reads
	np, err := p.open(context.Background())
	if err != nil {
		return nil, errors.Annotate(err, "reconnect")
	}
	if err = np.SetReadDeadline(p.deadline); err != nil {
		np.Close()
		return nil, errors.Annotate(err, "reconnect")
	}
	p.reopens++
	p.log.Infof("transport: reconnected %s", p.address)
	p.current = np
	return np, nil
}

func (p *reconnectPort) fail(current Port, err error) {
	if err == nil || IsTimeout(err) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == current && p.current != nil {
		p.log.Debugf("transport: %s err=%v, reopen on next use", p.address, err)
		p.current.Close()
		p.current = nil
	}
}

func (p *reconnectPort) Read(b []byte) (int, error) {
	current, err := p.port()
	if err != nil {
		return 0, err
	}
	n, err := current.Read(b)
	p.fail(current, err)
	return n, err
}

func (p *reconnectPort) Write(b []byte) (int, error) {
	current, err := p.port()
	if err != nil {
		return 0, err
	}
	n, err := current.Write(b)
	p.fail(current, err)
	return n, err
}

func (p *reconnectPort) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	if p.current != nil {
		return p.current.SetReadDeadline(t)
	}
	return nil
}

func (p *reconnectPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.current == nil {
		return nil
	}
	err := p.current.Close()
	p.current = nil
	return err
}

func (p *reconnectPort) String() string { return p.address }

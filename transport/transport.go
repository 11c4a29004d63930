// Package transport opens byte streams to the radio: serial device, UDP or TCP.
// Connection strings follow the pymavlink convention so existing ground station
// command lines keep working:
//
//	udpin:HOST:PORT   listen, reply to last sender (alias udp:)
//	udpout:HOST:PORT  send to fixed peer
//	tcp:HOST:PORT     connect
//	tcpin:HOST:PORT   listen, accept one peer
//	/dev/ttyUSB0      serial device, optional ",BAUD" suffix
package transport

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/log2"
)

const (
	DefaultBaud        = 57600
	DefaultOpenTimeout = 3 * time.Second
)

var (
	ErrClosing = fmt.Errorf("closing")
	ErrNoPeer  = fmt.Errorf("no peer address yet")
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindSerial
	KindUDPIn
	KindUDPOut
	KindTCP
	KindTCPIn
)

var kindNames = map[Kind]string{
	KindSerial: "serial",
	KindUDPIn:  "udpin",
	KindUDPOut: "udpout",
	KindTCP:    "tcp",
	KindTCPIn:  "tcpin",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Port is a byte stream to one peer. Read returns error with Timeout()=true
// when read deadline passes, see IsTimeout.
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	String() string
}

type Options struct {
	Baud          int
	AutoReconnect bool
	OpenTimeout   time.Duration
	Log           *log2.Log
}

type Address struct {
	Kind Kind
	Host string // host:port or device path
	Baud int
}

func (a Address) String() string {
	if a.Kind == KindSerial {
		return fmt.Sprintf("%s,%d", a.Host, a.Baud)
	}
	return a.Kind.String() + ":" + a.Host
}

// OpenError is the failure to establish port, as opposed to I/O error on open port.
type OpenError struct {
	Address string
	Err     error
}

func (e *OpenError) Error() string { return fmt.Sprintf("transport open %s: %v", e.Address, e.Err) }

func ParseAddress(s string, defaultBaud int) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, errors.NotValidf("empty address")
	}
	if defaultBaud <= 0 {
		defaultBaud = DefaultBaud
	}
	if i := strings.IndexByte(s, ':'); i > 0 && !strings.HasPrefix(s, "/") {
		var kind Kind
		switch strings.ToLower(s[:i]) {
		case "udp", "udpin":
			kind = KindUDPIn
		case "udpout":
			kind = KindUDPOut
		case "tcp":
			kind = KindTCP
		case "tcpin":
			kind = KindTCPIn
		default:
			return Address{}, errors.NotValidf("address=%s scheme=%s", s, s[:i])
		}
		host := s[i+1:]
		if _, _, err := splitHostPort(host); err != nil {
			return Address{}, errors.Annotatef(err, "address=%s", s)
		}
		return Address{Kind: kind, Host: host}, nil
	}

	a := Address{Kind: KindSerial, Host: s, Baud: defaultBaud}
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		baud, err := strconv.Atoi(s[i+1:])
		if err != nil || baud <= 0 {
			return Address{}, errors.NotValidf("address=%s baud", s)
		}
		a.Host, a.Baud = s[:i], baud
	}
	return a, nil
}

// Open parses connection string and opens port.
// With opt.AutoReconnect serial and TCP ports reopen themselves on next operation after I/O error.
func Open(ctx context.Context, address string, opt Options) (Port, error) {
	a, err := ParseAddress(address, opt.Baud)
	if err != nil {
		return nil, &OpenError{Address: address, Err: err}
	}
	if opt.OpenTimeout <= 0 {
		opt.OpenTimeout = DefaultOpenTimeout
	}
	open := func(ctx context.Context) (Port, error) {
		ctx, cancel := context.WithTimeout(ctx, opt.OpenTimeout)
		defer cancel()
		p, err := openAddress(ctx, a, opt)
		if err != nil {
			return nil, &OpenError{Address: a.String(), Err: err}
		}
		return p, nil
	}
	p, err := open(ctx)
	if err != nil {
		return nil, err
	}
	opt.Log.Debugf("transport: opened %s", p.String())
	if opt.AutoReconnect && (a.Kind == KindSerial || a.Kind == KindTCP) {
		return newReconnectPort(p, a.String(), open, opt.Log), nil
	}
	return p, nil
}

func openAddress(ctx context.Context, a Address, opt Options) (Port, error) {
	switch a.Kind {
	case KindSerial:
		return openSerial(ctx, a.Host, a.Baud)
	case KindUDPIn:
		return listenUDP(a.Host)
	case KindUDPOut:
		return dialUDP(ctx, a.Host)
	case KindTCP:
		return dialTCP(ctx, a.Host)
	case KindTCPIn:
		return listenTCP(a.Host)
	}
	return nil, errors.NotValidf("address kind=%s", a.Kind)
}

// IsTimeout reports read deadline expiration from any port kind.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	t, ok := errors.Cause(err).(interface{ Timeout() bool })
	return ok && t.Timeout()
}

type ErrTimeout string

func (e ErrTimeout) Error() string { return string(e) }
func (ErrTimeout) Timeout() bool   { return true }

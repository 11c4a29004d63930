package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
)

func splitHostPort(hostport string) (string, string, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", "", err
	}
	if port == "" {
		return "", "", errors.NotValidf("empty port")
	}
	return host, port, nil
}

// udpPort serves udpin and udpout.
// udpin replies to the address of last received datagram.
type udpPort struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	listen bool
	peer   *net.UDPAddr
}

func listenUDP(hostport string) (*udpPort, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, errors.Trace(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &udpPort{conn: conn, listen: true}, nil
}

func dialUDP(ctx context.Context, hostport string) (*udpPort, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", hostport)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &udpPort{conn: conn.(*net.UDPConn)}, nil
}

func (p *udpPort) Read(b []byte) (int, error) {
	if !p.listen {
		return p.conn.Read(b)
	}
	n, from, err := p.conn.ReadFromUDP(b)
	if from != nil {
		p.mu.Lock()
		p.peer = from
		p.mu.Unlock()
	}
	return n, err
}

func (p *udpPort) Write(b []byte) (int, error) {
	if !p.listen {
		return p.conn.Write(b)
	}
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return 0, ErrNoPeer
	}
	return p.conn.WriteToUDP(b, peer)
}

func (p *udpPort) SetReadDeadline(t time.Time) error { return p.conn.SetReadDeadline(t) }
func (p *udpPort) Close() error                      { return p.conn.Close() }

func (p *udpPort) String() string {
	if p.listen {
		return "udpin:" + addrString(p.conn.LocalAddr())
	}
	return "udpout:" + addrString(p.conn.RemoteAddr())
}

type tcpPort struct {
	conn net.Conn
}

func dialTCP(ctx context.Context, hostport string) (*tcpPort, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &tcpPort{conn: conn}, nil
}

func (p *tcpPort) Read(b []byte) (int, error)        { return p.conn.Read(b) }
func (p *tcpPort) Write(b []byte) (int, error)       { return p.conn.Write(b) }
func (p *tcpPort) SetReadDeadline(t time.Time) error { return p.conn.SetReadDeadline(t) }
func (p *tcpPort) Close() error                      { return p.conn.Close() }
func (p *tcpPort) String() string                    { return "tcp:" + addrString(p.conn.RemoteAddr()) }

// tcpinPort listens at open and accepts single peer lazily on first Read.
// Next peer is accepted after current one disconnects.
type tcpinPort struct {
	mu       sync.Mutex
	ln       *net.TCPListener
	conn     net.Conn
	deadline time.Time
}

func listenTCP(hostport string) (*tcpinPort, error) {
	addr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &tcpinPort{ln: ln}, nil
}

func (p *tcpinPort) accept() (net.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	if err := p.ln.SetDeadline(p.deadline); err != nil {
		return nil, errors.Trace(err)
	}
	conn, err := p.ln.Accept()
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(p.deadline)
	p.conn = conn
	return conn, nil
}

func (p *tcpinPort) drop(conn net.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()
	conn.Close()
}

func (p *tcpinPort) Read(b []byte) (int, error) {
	conn, err := p.accept()
	if err != nil {
		return 0, err
	}
	n, err := conn.Read(b)
	if err != nil && !IsTimeout(err) {
		p.drop(conn)
	}
	return n, err
}

func (p *tcpinPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return 0, ErrNoPeer
	}
	n, err := conn.Write(b)
	if err != nil {
		p.drop(conn)
	}
	return n, err
}

func (p *tcpinPort) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	if p.conn != nil {
		return p.conn.SetReadDeadline(t)
	}
	return nil
}

func (p *tcpinPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return p.ln.Close()
}

func (p *tcpinPort) String() string { return "tcpin:" + addrString(p.ln.Addr()) }

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

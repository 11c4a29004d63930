package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// asm-generic ioctl numbers, valid for 386, amd64, arm, arm64
const (
	cBOTHER   = 0x1000
	cNCCS     = 19
	cTCSETSF2 = 0x402c542d
)

// poll slice, Close is noticed between slices
const serialPollMax = 100 * time.Millisecond

type cc_t byte
type speed_t uint32
type tcflag_t uint32
type termios2 struct {
	c_iflag  tcflag_t    // input mode flags
	c_oflag  tcflag_t    // output mode flags
	c_cflag  tcflag_t    // control mode flags
	c_lflag  tcflag_t    // local mode flags
	c_line   cc_t        // line discipline
	c_cc     [cNCCS]cc_t // control characters
	c_ispeed speed_t     // input speed
	c_ospeed speed_t     // output speed
}

type serialPort struct {
	fd       int
	path     string
	baud     int
	closed   uint32
	deadline atomic.Value // time.Time
}

func openSerial(ctx context.Context, path string, baud int) (*serialPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// O_NONBLOCK so open does not wait for carrier detect
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "open path=%s", path)
	}
	if err = unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, errors.Annotate(err, "SetNonblock")
	}
	// raw 8N1, arbitrary baud rate via BOTHER
	t2 := termios2{
		c_cflag:  cBOTHER | unix.CS8 | unix.CLOCAL | unix.CREAD,
		c_ispeed: speed_t(baud),
		c_ospeed: speed_t(baud),
	}
	t2.c_cc[unix.VMIN] = 0
	t2.c_cc[unix.VTIME] = 0
	if err = ioctl(fd, cTCSETSF2, uintptr(unsafe.Pointer(&t2))); err != nil {
		unix.Close(fd)
		return nil, errors.Annotatef(err, "set termios path=%s baud=%d", path, baud)
	}
	p := &serialPort{fd: fd, path: path, baud: baud}
	p.deadline.Store(time.Time{})
	return p, nil
}

func ioctl(fd int, op, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		if atomic.LoadUint32(&p.closed) != 0 {
			return 0, ErrClosing
		}
		wait := serialPollMax
		if deadline := p.deadline.Load().(time.Time); !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return 0, ErrTimeout("serial read timeout")
			}
			if left < wait {
				wait = left
			}
		}
		fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(wait/time.Millisecond)+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Annotate(err, "poll")
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return 0, fmt.Errorf("serial %s revents=%#x", p.path, fds[0].Revents)
		}
		n, err = unix.Read(p.fd, b)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			// readable but no data, device is gone
			return 0, fmt.Errorf("serial %s EOF", p.path)
		}
		return n, nil
	}
}

func (p *serialPort) Write(b []byte) (int, error) {
	if atomic.LoadUint32(&p.closed) != 0 {
		return 0, ErrClosing
	}
	total := 0
	for total < len(b) {
		n, err := unix.Write(p.fd, b[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (p *serialPort) SetReadDeadline(t time.Time) error {
	p.deadline.Store(t)
	return nil
}

func (p *serialPort) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	return unix.Close(p.fd)
}

func (p *serialPort) String() string { return fmt.Sprintf("serial:%s,%d", p.path, p.baud) }

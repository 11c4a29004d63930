// Package link keeps connection to remote vehicle alive: waits for HEARTBEAT,
// sends RFD_TEST counter at fixed rate, declares link dead after heartbeat silence
// and reconnects.
package link

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavconn"
	"github.com/temoto/rfdlink/mavlink"
	"github.com/temoto/rfdlink/transport"
)

// Conn is message level connection, see mavconn.Conn.
type Conn interface {
	WaitMessage(ctx context.Context, id uint32, timeout time.Duration) (mavlink.Message, *mavlink.Frame, error)
	PollMessage(id uint32) (mavlink.Message, *mavlink.Frame, error)
	Send(mavlink.Message) error
	Close() error
}

type Opener interface {
	Open(ctx context.Context, address string, baud int) (Conn, error)
}

// Reporter receives link state transitions and stat after each successful send.
// Must not block.
type Reporter interface {
	LinkState(connected bool, reason string)
	LinkStat(*Stat)
}

// Session is driven by single goroutine, see Run.
// Only Stat() is safe to call concurrently.
type Session struct {
	cfg      Config
	opener   Opener
	log      *log2.Log
	reporter Reporter
	alive    *alive.Alive
	retry    helpers.Backoff

	conn          Conn
	connected     bool
	lastHeartbeat time.Time // from now(), keeps monotonic reading
	seq           uint8
	stat          Stat

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSession(cfg Config, opener Opener, log *log2.Log) *Session {
	retryMax := cfg.RetryMax
	if retryMax == 0 {
		retryMax = cfg.RetryDelay
	}
	return &Session{
		cfg:    cfg,
		opener: opener,
		log:    log,
		retry: helpers.Backoff{
			Min: cfg.RetryDelay,
			Max: retryMax,
			K:   2,
		},
		now:   time.Now,
		sleep: sleep,
	}
}

// SetReporter must be called before Run.
func (s *Session) SetReporter(r Reporter) { s.reporter = r }

// SetAlive links Run cancellation to a.Stop().
func (s *Session) SetAlive(a *alive.Alive) { s.alive = a }

func (s *Session) Config() Config  { return s.cfg }
func (s *Session) Connected() bool { return s.connected }
func (s *Session) Seq() uint8      { return s.seq }
func (s *Session) Stat() *Stat     { return &s.stat }

// LastHeartbeat is zero before first heartbeat.
func (s *Session) LastHeartbeat() time.Time { return s.lastHeartbeat }

// Connect discards previous connection, opens new one and waits for HEARTBEAT.
func (s *Session) Connect(ctx context.Context) bool {
	s.closeConn()

	s.log.Infof("link: connecting device=%s", s.cfg.Address)
	openCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	conn, err := s.opener.Open(openCtx, s.cfg.Address, s.cfg.Baud)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.stat.ConnectFails.Add(1)
		if _, ok := errors.Cause(err).(*transport.OpenError); ok {
			s.log.Errorf("link: %v", err)
		} else {
			s.log.Errorf("link: connect device=%s err=%v", s.cfg.Address, err)
		}
		return false
	}
	s.conn = conn

	s.log.Infof("link: waiting for heartbeat timeout=%s", s.cfg.HeartbeatWait)
	m, f, err := conn.WaitMessage(ctx, mavlink.HeartbeatID, s.cfg.HeartbeatWait)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false
	case errors.Cause(err) == mavconn.ErrNoMessage:
		s.stat.ConnectFails.Add(1)
		s.log.Infof("link: no heartbeat within %s", s.cfg.HeartbeatWait)
		return false
	default:
		s.stat.ConnectFails.Add(1)
		s.log.Errorf("link: wait heartbeat device=%s err=%v", s.cfg.Address, err)
		return false
	}

	s.lastHeartbeat = s.now()
	s.connected = true
	s.retry.Reset()
	s.stat.Connects.Add(1)
	s.stat.Heartbeats.Add(1)
	s.log.Infof("link: heartbeat from system=%d component=%d %v", f.SysID, f.CompID, m)
	if s.reporter != nil {
		s.reporter.LinkState(true, "heartbeat")
	}
	return true
}

// SendTelemetry sends RFD_TEST with current counter, increments it on success only.
func (s *Session) SendTelemetry() bool {
	if !s.connected {
		return false
	}
	m := &mavlink.RfdTest{MsgID: s.cfg.RfdTestID, RandomDeger: s.seq}
	if err := s.conn.Send(m); err != nil {
		s.stat.SendFails.Add(1)
		s.log.Errorf("link: send %v err=%v", m, err)
		s.disconnect("send error")
		return false
	}
	s.seq++
	s.stat.Sent.Add(1)
	s.log.Debugf("link: sent %s=%d", mavlink.RfdTestFieldValue, m.RandomDeger)
	if s.reporter != nil {
		s.reporter.LinkStat(&s.stat)
	}
	return true
}

// CheckLinkHealth polls for HEARTBEAT without blocking and declares link dead
// after LinkTimeout of silence.
func (s *Session) CheckLinkHealth() {
	if s.conn == nil {
		s.log.Errorf("code error link.CheckLinkHealth without connection")
		return
	}
	_, _, err := s.conn.PollMessage(mavlink.HeartbeatID)
	now := s.now()
	switch {
	case err == nil:
		s.lastHeartbeat = now
		s.stat.Heartbeats.Add(1)
	case errors.Cause(err) == mavconn.ErrNoMessage:
	default:
		s.log.Errorf("link: poll heartbeat err=%v", err)
	}

	if !s.connected {
		return
	}
	if silence := now.Sub(s.lastHeartbeat); silence > s.cfg.LinkTimeout {
		s.stat.Timeouts.Add(1)
		s.log.Errorf("link: timeout, no heartbeat for %s", silence.Round(time.Millisecond))
		s.disconnect("link timeout")
	}
}

// Run is the driving loop. Returns nil after ctx is done or alive is stopped,
// error only on invalid config.
func (s *Session) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return errors.Annotate(err, "link config")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.alive != nil {
		go func() {
			select {
			case <-s.alive.StopChan():
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	defer s.shutdown()

	s.log.Infof("link: start device=%s baud=%d interval=%s", s.cfg.Address, s.cfg.Baud, s.cfg.Interval)
	for ctx.Err() == nil {
		if !s.connected {
			if s.Connect(ctx) {
				continue
			}
			delay := s.retry.Failure()
			if ctx.Err() == nil {
				s.log.Infof("link: retry in %s", delay)
			}
			if s.sleep(ctx, delay) != nil {
				break
			}
			continue
		}

		s.CheckLinkHealth()
		if !s.connected {
			s.log.Infof("link: lost connection, reconnecting")
			continue
		}
		s.SendTelemetry()
		if s.sleep(ctx, s.cfg.Interval) != nil {
			break
		}
	}
	return nil
}

func (s *Session) disconnect(reason string) {
	if !s.connected {
		return
	}
	s.connected = false
	if s.reporter != nil {
		s.reporter.LinkState(false, reason)
	}
}

func (s *Session) closeConn() {
	s.disconnect("reconnect")
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debugf("link: close err=%v", err)
		}
		s.conn = nil
	}
}

func (s *Session) shutdown() {
	s.disconnect("shutdown")
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.log.Infof("link: shutdown sent=%d last=%d", s.stat.Sent.Value(), s.seq)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

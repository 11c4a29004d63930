package link

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/mavlink"
)

const (
	DefaultAddress       = "udpin:127.0.0.1:14550"
	DefaultBaud          = 57600
	DefaultHz            = 10
	DefaultHeartbeatWait = 5 * time.Second
	DefaultLinkTimeout   = 5 * time.Second
	DefaultRetryDelay    = 2 * time.Second
	DefaultOpenTimeout   = 3 * time.Second
)

// Config is immutable after NewSession.
type Config struct {
	Address  string
	Baud     int
	Interval time.Duration // 1/hz

	HeartbeatWait time.Duration // bounded wait in Connect
	LinkTimeout   time.Duration // silence longer than this is dead link
	RetryDelay    time.Duration // sleep after failed Connect
	RetryMax      time.Duration // >RetryDelay enables exponential retry backoff
	OpenTimeout   time.Duration

	RfdTestID uint32
}

func DefaultConfig() Config {
	return Config{
		Address:       DefaultAddress,
		Baud:          DefaultBaud,
		Interval:      helpers.HzInterval(DefaultHz),
		HeartbeatWait: DefaultHeartbeatWait,
		LinkTimeout:   DefaultLinkTimeout,
		RetryDelay:    DefaultRetryDelay,
		OpenTimeout:   DefaultOpenTimeout,
		RfdTestID:     mavlink.DefaultRfdTestID,
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.Address == "" {
		errs = append(errs, errors.NotValidf("link address empty"))
	}
	if c.Baud <= 0 {
		errs = append(errs, errors.NotValidf("link baud=%d", c.Baud))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.NotValidf("link interval=%s (hz must be > 0)", c.Interval))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"heartbeat_wait", c.HeartbeatWait},
		{"link_timeout", c.LinkTimeout},
		{"retry_delay", c.RetryDelay},
		{"open_timeout", c.OpenTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, errors.NotValidf("link %s=%s", d.name, d.value))
		}
	}
	if c.RetryMax != 0 && c.RetryMax < c.RetryDelay {
		errs = append(errs, errors.NotValidf("link retry_max=%s < retry_delay=%s", c.RetryMax, c.RetryDelay))
	}
	return helpers.FoldErrors(errs)
}

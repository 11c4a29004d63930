package state

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfdlink/link"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavlink"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, link.DefaultConfig(), c.LinkConfig())
			assert.Equal(t, mavlink.V2, c.MavlinkVersion())
			assert.Equal(t, byte(DefaultSystemID), c.SystemID())
			assert.Equal(t, log2.LInfo, c.LogLevel())
			assert.NoError(t, c.Validate())
		}, ""},

		{"link", `
link {
	device = "/dev/ttyUSB0"
	baud = 115200
	hz = 2.5
	heartbeat_wait_ms = 3000
	link_timeout_ms = 7000
	retry_delay_ms = 500
	retry_max_ms = 8000
}`,
			func(t testing.TB, c *Config) {
				lc := c.LinkConfig()
				assert.Equal(t, "/dev/ttyUSB0", lc.Address)
				assert.Equal(t, 115200, lc.Baud)
				assert.Equal(t, 400*time.Millisecond, lc.Interval)
				assert.Equal(t, 3*time.Second, lc.HeartbeatWait)
				assert.Equal(t, 7*time.Second, lc.LinkTimeout)
				assert.Equal(t, 500*time.Millisecond, lc.RetryDelay)
				assert.Equal(t, 8*time.Second, lc.RetryMax)
				assert.Equal(t, link.DefaultOpenTimeout, lc.OpenTimeout)
				assert.NoError(t, c.Validate())
			}, ""},

		{"hz-zero", `link { hz = 0 }`,
			func(t testing.TB, c *Config) {
				require.NotNil(t, c.Link.Hz)
				assert.Equal(t, 0.0, *c.Link.Hz)
				err := c.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), "link hz=0 (must be > 0)")
			}, ""},

		{"mavlink", `mavlink { version = 1 system_id = 42 component_id = 190 rfd_test_id = 180 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, mavlink.V1, c.MavlinkVersion())
				opt, err := c.MavconnOptions(nil)
				require.NoError(t, err)
				assert.Equal(t, byte(42), opt.SysID)
				assert.Equal(t, byte(190), opt.CompID)
				_, ok := opt.Dialect.Lookup(180)
				assert.True(t, ok)
				assert.Equal(t, uint32(180), c.LinkConfig().RfdTestID)
				assert.NoError(t, c.Validate())
			}, ""},

		{"report", `report { enable = true mqtt_broker = "tcp://10.0.0.1:1883" topic_prefix = "gcs1" keepalive_sec = 10 stat_every = 100 }`,
			func(t testing.TB, c *Config) {
				rc := c.ReportConfig()
				assert.True(t, c.Report.Enable)
				assert.Equal(t, "tcp://10.0.0.1:1883", rc.Broker)
				assert.Equal(t, "gcs1", rc.TopicPrefix)
				assert.Equal(t, 10*time.Second, rc.Keepalive)
				assert.Equal(t, int64(100), rc.StatEvery)
			}, ""},

		{"log", `log { debug = true file = "/var/log/rfdlink.log" max_size_mb = 5 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, log2.LDebug, c.LogLevel())
				assert.Equal(t, "/var/log/rfdlink.log", c.Log.File)
				assert.Equal(t, 5, c.Log.MaxSizeMB)
			}, ""},

		{"include-normalize", `
link { baud = 9600 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "link-hz-50" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 20*time.Millisecond, c.LinkConfig().Interval)
			}, ""},

		{"include-overwrites", `
mavlink { system_id = 1 }
include "system-7" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, byte(7), c.SystemID())
			}, ""},

		{"include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"include-loop", `include "loop-a" {}`, nil, "config include loop"},
		{"syntax", `link { baud = }`, nil, "config unmarshal source=test-inline"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			fs := NewMockFullReader(map[string]string{
				"test-inline": c.input,
				"empty":       "",
				"link-hz-50":  "link { hz = 50.0 }",
				"system-7":    "mavlink { system_id = 7 }",
				"loop-a":      `include "loop-b" {}`,
				"loop-b":      `include "loop-a" {}`,
			})
			cfg, err := ReadConfig(log2.NewTest(t, log2.LDebug), fs, "test-inline")
			if c.expectErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				return
			}
			if c.check != nil {
				c.check(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		modify func(*Config)
		expect string
	}{
		{"hz-negative", func(c *Config) { hz := -1.0; c.Link.Hz = &hz }, "link hz=-1"},
		{"hz-zero", func(c *Config) { hz := 0.0; c.Link.Hz = &hz }, "link hz=0 (must be > 0)"},
		{"baud", func(c *Config) { c.Link.Baud = -5 }, "link baud=-5"},
		{"device", func(c *Config) { c.Link.Device = "ftp:host:21" }, "link device"},
		{"version", func(c *Config) { c.Mavlink.Version = 3 }, "mavlink version=3"},
		{"system-id", func(c *Config) { c.Mavlink.SystemID = 300 }, "mavlink system_id=300"},
		{"v1-id", func(c *Config) { c.Mavlink.Version = 1 }, "v1 supports id < 256"},
		{"id-range", func(c *Config) { c.Mavlink.RfdTestID = 1 << 24 }, "rfd_test_id=16777216"},
		{"report", func(c *Config) { c.Report.Enable = true }, "mqtt_broker empty"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cfg := NewConfig()
			c.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expect)
		})
	}
}

func TestOsFullReader(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "rfdlink-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "main.hcl"), []byte(`
link { device = "udpout:10.0.0.2:14550" }
include "local.hcl" { optional = true }
include "radio.hcl" {}`), 0600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "radio.hcl"), []byte(`link { baud = 230400 }`), 0600))

	cfg, err := ReadConfig(log2.NewTest(t, log2.LDebug), NewOsFullReader("."), filepath.Join(dir, "main.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "udpout:10.0.0.2:14550", cfg.Link.Device)
	assert.Equal(t, 230400, cfg.Link.Baud)
}

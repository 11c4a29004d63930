package state

import (
	"path/filepath"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/link"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/mavconn"
	"github.com/temoto/rfdlink/mavlink"
	"github.com/temoto/rfdlink/report"
	"github.com/temoto/rfdlink/transport"
)

const (
	DefaultSystemID    = 255
	DefaultComponentID = 0
)

type Config struct {
	includeSeen map[string]struct{}
	XXX_Include []ConfigSource `hcl:"include"`

	Link struct {
		Device          string   `hcl:"device"`
		Baud            int      `hcl:"baud"`
		Hz              *float64 `hcl:"hz"` // nil = default
		HeartbeatWaitMs int      `hcl:"heartbeat_wait_ms"`
		LinkTimeoutMs   int      `hcl:"link_timeout_ms"`
		RetryDelayMs    int      `hcl:"retry_delay_ms"`
		RetryMaxMs      int      `hcl:"retry_max_ms"`
		OpenTimeoutMs   int      `hcl:"open_timeout_ms"`
	} `hcl:"link"`

	Mavlink struct {
		Version     int `hcl:"version"`
		SystemID    int `hcl:"system_id"`
		ComponentID int `hcl:"component_id"`
		RfdTestID   int `hcl:"rfd_test_id"`
	} `hcl:"mavlink"`

	Report struct {
		Enable       bool   `hcl:"enable"`
		MqttBroker   string `hcl:"mqtt_broker"`
		ClientID     string `hcl:"client_id"`
		TopicPrefix  string `hcl:"topic_prefix"`
		KeepaliveSec int    `hcl:"keepalive_sec"`
		LogDebug     bool   `hcl:"log_debug"`
		StatEvery    int    `hcl:"stat_every"`
	} `hcl:"report"`

	Log struct {
		Debug      bool   `hcl:"debug"`
		File       string `hcl:"file"`
		MaxSizeMB  int    `hcl:"max_size_mb"`
		MaxBackups int    `hcl:"max_backups"`
		MaxAgeDays int    `hcl:"max_age_days"`
	} `hcl:"log"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func NewConfig() *Config {
	return &Config{includeSeen: make(map[string]struct{})}
}

// LinkConfig resolves zero values to defaults.
func (c *Config) LinkConfig() link.Config {
	lc := link.DefaultConfig()
	if c.Link.Device != "" {
		lc.Address = c.Link.Device
	}
	if c.Link.Baud != 0 {
		lc.Baud = c.Link.Baud
	}
	if c.Link.Hz != nil && *c.Link.Hz > 0 {
		lc.Interval = helpers.HzInterval(*c.Link.Hz)
	}
	lc.HeartbeatWait = helpers.IntMillisecondDefault(c.Link.HeartbeatWaitMs, lc.HeartbeatWait)
	lc.LinkTimeout = helpers.IntMillisecondDefault(c.Link.LinkTimeoutMs, lc.LinkTimeout)
	lc.RetryDelay = helpers.IntMillisecondDefault(c.Link.RetryDelayMs, lc.RetryDelay)
	lc.RetryMax = helpers.IntMillisecondDefault(c.Link.RetryMaxMs, 0)
	lc.OpenTimeout = helpers.IntMillisecondDefault(c.Link.OpenTimeoutMs, lc.OpenTimeout)
	if c.Mavlink.RfdTestID != 0 {
		lc.RfdTestID = uint32(c.Mavlink.RfdTestID)
	}
	return lc
}

func (c *Config) MavlinkVersion() mavlink.Version {
	if c.Mavlink.Version == 0 {
		return mavlink.V2
	}
	return mavlink.Version(c.Mavlink.Version)
}

func (c *Config) SystemID() byte {
	if c.Mavlink.SystemID == 0 {
		return DefaultSystemID
	}
	return byte(c.Mavlink.SystemID)
}

// MavconnOptions for link.MavconnOpener. Baud and AutoReconnect are set by opener.
func (c *Config) MavconnOptions(log *log2.Log) (mavconn.Options, error) {
	lc := c.LinkConfig()
	d, err := mavlink.NewLinkDialect(lc.RfdTestID)
	if err != nil {
		return mavconn.Options{}, errors.Annotate(err, "config mavlink")
	}
	return mavconn.Options{
		Options: transport.Options{
			OpenTimeout: lc.OpenTimeout,
			Log:         log,
		},
		Dialect: d,
		Version: c.MavlinkVersion(),
		SysID:   c.SystemID(),
		CompID:  byte(c.Mavlink.ComponentID),
	}, nil
}

func (c *Config) ReportConfig() report.Config {
	return report.Config{
		Broker:      c.Report.MqttBroker,
		ClientID:    c.Report.ClientID,
		TopicPrefix: c.Report.TopicPrefix,
		Keepalive:   helpers.IntSecondDefault(c.Report.KeepaliveSec, report.DefaultKeepalive),
		LogDebug:    c.Report.LogDebug,
		StatEvery:   int64(c.Report.StatEvery),
	}
}

func (c *Config) LogLevel() log2.Level {
	if c.Log.Debug {
		return log2.LDebug
	}
	return log2.LInfo
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.Link.Hz != nil && *c.Link.Hz <= 0 {
		errs = append(errs, errors.NotValidf("link hz=%v (must be > 0)", *c.Link.Hz))
	}
	lc := c.LinkConfig()
	if err := lc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := transport.ParseAddress(lc.Address, lc.Baud); err != nil {
		errs = append(errs, errors.Annotate(err, "link device"))
	}
	v := c.MavlinkVersion()
	if v != mavlink.V1 && v != mavlink.V2 {
		errs = append(errs, errors.NotValidf("mavlink version=%d", c.Mavlink.Version))
	}
	if c.Mavlink.SystemID < 0 || c.Mavlink.SystemID > 255 {
		errs = append(errs, errors.NotValidf("mavlink system_id=%d", c.Mavlink.SystemID))
	}
	if c.Mavlink.ComponentID < 0 || c.Mavlink.ComponentID > 255 {
		errs = append(errs, errors.NotValidf("mavlink component_id=%d", c.Mavlink.ComponentID))
	}
	switch {
	case c.Mavlink.RfdTestID < 0 || c.Mavlink.RfdTestID > 0xffffff:
		errs = append(errs, errors.NotValidf("mavlink rfd_test_id=%d", c.Mavlink.RfdTestID))
	case lc.RfdTestID == mavlink.HeartbeatID:
		errs = append(errs, errors.NotValidf("mavlink rfd_test_id=%d conflicts with HEARTBEAT", lc.RfdTestID))
	case v == mavlink.V1 && lc.RfdTestID > 0xff:
		errs = append(errs, errors.NotValidf("mavlink version=1 rfd_test_id=%d (v1 supports id < 256)", lc.RfdTestID))
	}
	if c.Report.Enable && c.Report.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("report enable=true mqtt_broker empty"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order, later values overwrite earlier.
// With OsFullReader includes are relative to directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := NewConfig()
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

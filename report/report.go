// Package report publishes link state and counters to MQTT for remote monitoring.
// Payload is protobuf google.protobuf.Struct.
package report

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfdlink/helpers"
	"github.com/temoto/rfdlink/link"
	"github.com/temoto/rfdlink/log2"
)

const (
	DefaultTopicPrefix = "rfdlink"
	DefaultKeepalive   = 30 * time.Second
	DefaultStatEvery   = 50
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateOffline       = "offline"
	publishQueue       = 32
)

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Keepalive   time.Duration
	LogDebug    bool
	StatEvery   int64 // publish stat after every N sends
}

// Reporter is link.Reporter with lifetime.
type Reporter interface {
	link.Reporter
	Close()
}

type Noop struct{}

func (Noop) LinkState(bool, string) {}
func (Noop) LinkStat(*link.Stat)    {}
func (Noop) Close()                 {}

type MQTT struct {
	alive     *alive.Alive
	log       *log2.Log
	m         mqtt.Client
	mopt      *mqtt.ClientOptions
	statEvery int64
	now       func() time.Time
	pubq      chan pubMsg // in order, drained by publisher()

	topicState string
	topicStat  string
}

func New(cfg Config, log *log2.Log) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.NotValidf("report mqtt_broker empty")
	}
	// paho loggers are package globals
	mqttLog := log.Clone(log2.LDebug)
	mqttLog.SetPrefix("mqtt: ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if cfg.LogDebug {
		mqtt.DEBUG = mqttLog
	}
	return newWithClient(cfg, log, mqtt.NewClient)
}

func newWithClient(cfg Config, log *log2.Log, newClient func(*mqtt.ClientOptions) mqtt.Client) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.NotValidf("report mqtt_broker empty")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = cfg.TopicPrefix
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	if cfg.StatEvery <= 0 {
		cfg.StatEvery = DefaultStatEvery
	}

	r := &MQTT{
		alive:      alive.NewAlive(),
		log:        log,
		statEvery:  cfg.StatEvery,
		now:        time.Now,
		pubq:       make(chan pubMsg, publishQueue),
		topicState: cfg.TopicPrefix + "/state",
		topicStat:  cfg.TopicPrefix + "/stat",
	}
	will, err := r.statePayload(StateOffline, "will")
	if err != nil {
		return nil, errors.Annotate(err, "report will")
	}
	r.mopt = mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetAutoReconnect(true).
		SetBinaryWill(r.topicState, will, 1, true).
		SetCleanSession(true).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Keepalive).
		SetKeepAlive(cfg.Keepalive).
		SetMaxReconnectInterval(cfg.Keepalive).
		SetWriteTimeout(cfg.Keepalive)
	r.m = newClient(r.mopt)

	if r.alive.Add(2) {
		go r.publisher()
		go r.online()
	}
	return r, nil
}

// LinkState publishes retained state, never blocks caller.
func (r *MQTT) LinkState(connected bool, reason string) {
	state := StateDisconnected
	if connected {
		state = StateConnected
	}
	payload, err := r.statePayload(state, reason)
	if err != nil {
		r.log.Errorf("report: state err=%v", err)
		return
	}
	r.publish(r.topicState, 1, true, payload)
}

// LinkStat publishes counters after every StatEvery sends.
func (r *MQTT) LinkStat(st *link.Stat) {
	sent := st.Sent.Value()
	if sent == 0 || sent%r.statEvery != 0 {
		return
	}
	fields := make(map[string]*structpb.Value, 8)
	for k, v := range st.Map() {
		fields[k] = numberValue(float64(v))
	}
	fields["time"] = numberValue(float64(r.now().Unix()))
	payload, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		r.log.Errorf("report: stat err=%v", err)
		return
	}
	r.publish(r.topicStat, 0, false, payload)
}

// Close flushes queued messages, publishes offline state and disconnects.
func (r *MQTT) Close() {
	r.alive.Stop()
	r.alive.Wait()
	if payload, err := r.statePayload(StateOffline, "shutdown"); err == nil && r.m.IsConnectionOpen() {
		_ = r.tokenWait(r.m.Publish(r.topicState, 1, true, payload), "publish offline")
	}
	r.m.Disconnect(uint(r.mopt.WriteTimeout / time.Millisecond))
}

type pubMsg struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// publish is called on link goroutine, must not touch the client.
func (r *MQTT) publish(topic string, qos byte, retain bool, payload []byte) {
	if !r.alive.IsRunning() {
		return
	}
	select {
	case r.pubq <- pubMsg{topic: topic, qos: qos, retain: retain, payload: payload}:
	default:
		r.log.Errorf("report: publish queue full, dropped topic=%s", topic)
	}
}

func (r *MQTT) publisher() {
	defer r.alive.Done()
	for {
		select {
		case p := <-r.pubq:
			r.send(p)
		case <-r.alive.StopChan():
			for {
				select {
				case p := <-r.pubq:
					r.send(p)
				default:
					return
				}
			}
		}
	}
}

func (r *MQTT) send(p pubMsg) {
	_ = r.tokenWait(r.m.Publish(p.topic, p.qos, p.retain, p.payload), "publish "+p.topic)
}

func (r *MQTT) online() {
	defer r.alive.Done()
	delay := helpers.Backoff{Min: time.Second, Max: r.mopt.MaxReconnectInterval, K: 2}
	for r.alive.IsRunning() {
		if r.tokenWait(r.m.Connect(), "connect") == nil {
			r.log.Infof("report: connected broker=%v", r.mopt.Servers)
			return
		}
		select {
		case <-time.After(delay.Failure()):
		case <-r.alive.StopChan():
			return
		}
	}
}

func (r *MQTT) statePayload(state, reason string) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"state":  stringValue(state),
		"reason": stringValue(reason),
		"time":   numberValue(float64(r.now().Unix())),
	}}
	return proto.Marshal(s)
}

func (r *MQTT) tokenWait(t mqtt.Token, tag string) error {
	if !t.Wait() {
		err := errors.Errorf("%s timeout", tag)
		r.log.Errorf("report: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		r.log.Errorf("report: MQTT %s", err.Error())
		return err
	}
	return nil
}

func (r *MQTT) String() string { return fmt.Sprintf("report.MQTT(%s, %s)", r.topicState, r.topicStat) }

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(x float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: x}}
}

package report

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type mqttMock struct {
	sync.Mutex
	Opt        *mqtt.ClientOptions
	Pub        chan mockMsg
	gate       chan struct{} // non-nil Publish waits until closed
	connects   int
	connectErr error
	open       bool
}

func newMqttMock() *mqttMock {
	return &mqttMock{Pub: make(chan mockMsg, 32)}
}

func (m *mqttMock) New(opt *mqtt.ClientOptions) mqtt.Client {
	m.Opt = opt
	return m
}

func (m *mqttMock) Disconnect(uint)   { m.Lock(); m.open = false; m.Unlock() }
func (m *mqttMock) IsConnected() bool { return m.IsConnectionOpen() }
func (m *mqttMock) IsConnectionOpen() bool {
	m.Lock()
	defer m.Unlock()
	return m.open
}

func (m *mqttMock) Connect() mqtt.Token {
	m.Lock()
	defer m.Unlock()
	m.connects++
	if m.connectErr != nil {
		return mockToken{m.connectErr}
	}
	m.open = true
	return mockToken{nil}
}

func (m *mqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	if m.gate != nil {
		<-m.gate
	}
	m.Pub <- mockMsg{T: topic, P: payload.([]byte), Q: qos, R: retain}
	return mockToken{nil}
}

func (m *mqttMock) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (m *mqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (m *mqttMock) Unsubscribe(...string) mqtt.Token        { panic("not implemented") }
func (m *mqttMock) AddRoute(string, mqtt.MessageHandler)    { panic("not implemented") }
func (m *mqttMock) OptionsReader() mqtt.ClientOptionsReader { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error { return tok.error }
func (tok mockToken) Wait() bool   { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool {
	return !errors.IsTimeout(tok.error)
}

type mockMsg struct {
	T string
	P []byte
	Q byte
	R bool
}

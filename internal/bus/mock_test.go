package bus

import (
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockTransport records traffic and lets tests deliver messages.
type mockTransport struct {
	mu           sync.Mutex
	connected    bool
	handlers     map[string]mqtt.MessageHandler
	published    []published
	publishErr   error
	onConnect    func()
	onDisconnect func(error)
}

func newMockTransport(connected bool) *mockTransport {
	return &mockTransport{connected: connected, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic, payload, qos, retained})
	return nil
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) SetOnConnect(cb func())             { m.onConnect = cb }
func (m *mockTransport) SetOnDisconnect(cb func(err error)) { m.onDisconnect = cb }
func (m *mockTransport) Topics() mqtt.Topics                { return mqtt.NewTopics("venus") }

func (m *mockTransport) connect() {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.onConnect != nil {
		m.onConnect()
	}
}

func (m *mockTransport) deliver(topicFilter, topic string, payload []byte) error {
	m.mu.Lock()
	h := m.handlers[topicFilter]
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(topic, payload)
}

func (m *mockTransport) hasHandler(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *mockTransport) publishedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, len(m.published))
	for i, p := range m.published {
		topics[i] = p.topic
	}
	return topics
}

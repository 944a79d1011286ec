package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"stockscan/internal/logger"
)

// mqttQueueSize bounds notifications waiting for the publisher goroutine.
const mqttQueueSize = 64

// MQTTSink publishes notifications as JSON to <topic>/<level>. Notify only
// enqueues; a single goroutine talks to the broker, so a slow broker never
// blocks the producer.
type MQTTSink struct {
	broker   string
	topic    string
	clientID string
	client   mqtt.Client

	queue     chan Notification
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTTSink(broker, topic, clientID string) *MQTTSink {
	s := &MQTTSink{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		queue:    make(chan Notification, mqttQueueSize),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Connect establishes the broker connection; paho reconnects on its own afterwards.
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.broker))
	opts.SetClientID(s.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		logger.LogInfo("MQTT connection established (broker %s, client %s)", s.broker, s.clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		logger.LogWarn("MQTT connection lost, waiting for reconnect: %v", err)
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.setConnected(true)
	return nil
}

// Topic returns the topic a notification of the given level goes to.
func (s *MQTTSink) Topic(level Level) string {
	return fmt.Sprintf("%s/%s", s.topic, level)
}

// Notify queues n for publishing. A full queue drops n and counts it as
// failed.
func (s *MQTTSink) Notify(n Notification) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- n:
	default:
		s.countFailure()
		logger.LogWarn("MQTT queue full, dropping notification %q", n.Message)
	}
}

func (s *MQTTSink) run() {
	defer s.wg.Done()
	for {
		select {
		case n := <-s.queue:
			if err := s.publish(n); err != nil {
				s.countFailure()
				logger.LogWarn("MQTT publish failed: %v", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *MQTTSink) countFailure() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *MQTTSink) publish(n Notification) error {
	if !s.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	token := s.client.Publish(s.Topic(n.Level), 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return err
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

// Stats returns published and failed counts.
func (s *MQTTSink) Stats() (published, failed uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published, s.errors
}

// Close stops the publisher and disconnects. Notifications still queued are
// dropped.
func (s *MQTTSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250)
		}
		s.setConnected(false)
	})
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

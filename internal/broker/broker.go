// internal/broker/broker.go

// Package broker adapts an MQTT client to the narrow publish/subscribe
// surface the relay engine needs. Broker connectivity blips are expected;
// the adapter owns a fixed-delay reconnect loop so the relay session never
// ends on a broker error.
package broker

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gopkg.in/op/go-logging.v1"
)

const (
	clientID  = "mles-mqtt-proxy"
	keepAlive = 60 * time.Second
	// QoS 1: at-least-once, redeliveries are handled by the relay's
	// duplicate suppression.
	qos byte = 1

	connectAttempts = 3
	connectDelay    = 2 * time.Second
	reconnectDelay  = 5 * time.Second
	publishTimeout  = 10 * time.Second
)

// Message is one inbound publish event.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the broker surface the relay engine consumes.
type Client interface {
	// Subscribe delivers publishes for topic on the returned channel, in
	// arrival order, until Close.
	Subscribe(topic string) (<-chan Message, error)
	// Publish sends payload to topic at-least-once.
	Publish(topic string, payload []byte) error
	Close()
}

// Addr normalizes a broker URL (mqtt://host[:port], tcp://host[:port]) to
// the tcp://host:port form the MQTT client dials. The default port is 1883.
func Addr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("broker: parse url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("broker: no host in url %q", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "1883"
	}
	return fmt.Sprintf("tcp://%s:%s", host, port), nil
}

type pahoClient struct {
	cli  mqtt.Client
	log  *logging.Logger
	done chan struct{}

	mu     sync.Mutex
	subs   map[string]chan Message
	closed bool
}

// Connect dials the broker and returns once the connection is acknowledged.
// The initial connect gets a few spaced attempts and then fails for good;
// once established, later connection losses are retried forever with a
// fixed delay.
func Connect(rawURL string, log *logging.Logger) (Client, error) {
	addr, err := Addr(rawURL)
	if err != nil {
		return nil, err
	}

	p := &pahoClient{log: log, done: make(chan struct{}), subs: make(map[string]chan Message)}
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warningf("broker connection lost: %v, reconnecting", err)
			go p.reconnect()
		})
	p.cli = mqtt.NewClient(opts)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		tok := p.cli.Connect()
		tok.Wait()
		if lastErr = tok.Error(); lastErr == nil {
			p.log.Noticef("connected to broker %s", addr)
			return p, nil
		}
		p.log.Warningf("broker connect attempt %d failed: %v", attempt, lastErr)
		if attempt < connectAttempts {
			time.Sleep(connectDelay)
		}
	}
	return nil, fmt.Errorf("broker: connect %s: %w", addr, lastErr)
}

func (p *pahoClient) Subscribe(topic string) (<-chan Message, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("broker: client closed")
	}
	ch, ok := p.subs[topic]
	if !ok {
		ch = make(chan Message, 64)
		p.subs[topic] = ch
	}
	p.mu.Unlock()

	if err := p.subscribe(topic); err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *pahoClient) subscribe(topic string) error {
	tok := p.cli.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		p.mu.Lock()
		ch := p.subs[m.Topic()]
		p.mu.Unlock()
		if ch == nil {
			return
		}
		// Blocking hand-off keeps per-topic arrival order intact.
		select {
		case ch <- Message{Topic: m.Topic(), Payload: m.Payload()}:
		case <-p.done:
		}
	})
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", topic, err)
	}
	return nil
}

func (p *pahoClient) Publish(topic string, payload []byte) error {
	tok := p.cli.Publish(topic, qos, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("broker: publish %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("broker: publish %s: %w", topic, err)
	}
	return nil
}

// reconnect retries the broker connection with a fixed delay, forever, then
// restores subscriptions. Runs on its own goroutine.
func (p *pahoClient) reconnect() {
	for {
		time.Sleep(reconnectDelay)
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		tok := p.cli.Connect()
		tok.Wait()
		if err := tok.Error(); err != nil {
			p.log.Warningf("broker reconnect failed: %v, retrying", err)
			continue
		}
		p.log.Noticef("broker reconnected")
		p.mu.Lock()
		topics := make([]string, 0, len(p.subs))
		for topic := range p.subs {
			topics = append(topics, topic)
		}
		p.mu.Unlock()
		for _, topic := range topics {
			if err := p.subscribe(topic); err != nil {
				p.log.Warningf("broker resubscribe: %v", err)
			}
		}
		return
	}
}

func (p *pahoClient) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.subs = make(map[string]chan Message)
	p.mu.Unlock()

	close(p.done)
	p.cli.Disconnect(250)
}

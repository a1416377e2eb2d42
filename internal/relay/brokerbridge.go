// internal/relay/brokerbridge.go
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"mlesclient/internal/broker"
	"mlesclient/internal/dupdet"
	"mlesclient/internal/proto"
)

const (
	livenessInterval = 30 * time.Second
	// The broker has no dedicated application keep-alive, so the bridge
	// publishes an empty probe to a reserved topic.
	livenessTopic = "$SYS/ping"
)

// BrokerBridge relays frames between one relay endpoint and an MQTT broker.
// The broker topic equals the channel name; payloads are the raw encrypted
// frames.
type BrokerBridge struct {
	peer    Endpoint
	brk     broker.Client
	channel string
	hello   proto.Hello

	// Tracker covers the peer->broker direction, where QoS 1 redelivery
	// originates. Inbound publishes go straight to the peer.
	tracker *dupdet.Tracker
	stats   Stats
	state   stateVar
	log     *logging.Logger
}

// NewBrokerBridge wires a connected peer endpoint and broker client into a
// translating bridge for channel.
func NewBrokerBridge(peer Endpoint, brk broker.Client, channel string, hello proto.Hello, log *logging.Logger) *BrokerBridge {
	return &BrokerBridge{
		peer:    peer,
		brk:     brk,
		channel: channel,
		hello:   hello,
		tracker: dupdet.NewTracker(),
		log:     log,
	}
}

// State returns the current session state.
func (b *BrokerBridge) State() State {
	return b.state.get()
}

// Stats returns a snapshot of the forward counters: AToB is peer to broker,
// BToA is broker to peer.
func (b *BrokerBridge) Stats() Snapshot {
	return b.stats.Snapshot()
}

// Run subscribes to the channel topic, authenticates the peer endpoint, and
// relays until the peer connection ends or the context is cancelled. Broker
// trouble is retried inside the broker client and never ends the session.
func (b *BrokerBridge) Run(ctx context.Context) error {
	msgs, err := b.brk.Subscribe(b.channel)
	if err != nil {
		b.drain(nil)
		return fmt.Errorf("relay: %w", err)
	}

	b.state.advance(StateAuthenticating)
	if err := b.peer.WriteHello(b.hello); err != nil {
		b.drain(nil)
		return fmt.Errorf("relay: authenticate peer: %w", err)
	}

	b.state.advance(StateRelaying)
	b.log.Noticef("bridge established between peer and broker topic %q", b.channel)

	var wg sync.WaitGroup
	done := make(chan string, 2)
	stop := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		b.peerToBroker()
		done <- "peer"
	}()
	go func() {
		defer wg.Done()
		b.brokerToPeer(msgs, stop)
		done <- "broker stream"
	}()

	go b.reportStats(stop)
	go b.liveness(stop)

	select {
	case name := <-done:
		b.log.Noticef("%s closed", name)
	case <-ctx.Done():
		b.log.Noticef("shutdown requested")
	}
	close(stop)
	b.drain(&wg)
	return nil
}

// peerToBroker reads binary frames off the relay connection and publishes
// their raw bytes. Frames already seen are suppressed before publishing;
// publish failures drop the one frame and keep the session alive.
func (b *BrokerBridge) peerToBroker() {
	for {
		data, err := b.peer.ReadFrame()
		if err != nil {
			return
		}
		if b.tracker.IsDuplicate(dupdet.Fingerprint(data)) {
			continue
		}
		if err := b.brk.Publish(b.channel, data); err != nil {
			b.log.Warningf("publish to topic %q failed, frame dropped: %v", b.channel, err)
			continue
		}
		b.stats.AToB.Add(1)
	}
}

// brokerToPeer forwards inbound publish payloads to the peer as binary
// frames. A peer write failure ends the session.
func (b *BrokerBridge) brokerToPeer(msgs <-chan broker.Message, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if err := b.peer.WriteFrame(m.Payload); err != nil {
				return
			}
			b.stats.BToA.Add(1)
		}
	}
}

// liveness publishes a periodic probe so the broker session survives idle
// channels.
func (b *BrokerBridge) liveness(stop <-chan struct{}) {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := b.brk.Publish(livenessTopic, nil); err != nil {
				b.log.Warningf("liveness probe failed: %v", err)
			}
		}
	}
}

func (b *BrokerBridge) reportStats(stop <-chan struct{}) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := b.stats.Snapshot()
			b.log.Noticef("stats: peer -> broker: %d | broker -> peer: %d", snap.AToB, snap.BToA)
		}
	}
}

func (b *BrokerBridge) drain(wg *sync.WaitGroup) {
	b.state.advance(StateDraining)
	_ = b.peer.CloseNormal("bridge shutdown")
	b.brk.Close()
	if wg != nil {
		wg.Wait()
	}
	b.state.advance(StateClosed)
}

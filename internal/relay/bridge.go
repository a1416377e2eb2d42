// internal/relay/bridge.go
package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"mlesclient/internal/dupdet"
	"mlesclient/internal/proto"
)

const statsInterval = 5 * time.Second

// Bridge relays frames between two endpoints speaking the same wire
// protocol. It is content-oblivious: frames stay encrypted end to end and
// are deduplicated on their raw bytes.
type Bridge struct {
	a, b         Endpoint
	nameA, nameB string
	hello        proto.Hello

	// One tracker shared by both directions, so a frame this bridge just
	// forwarded and got echoed straight back is suppressed instead of
	// bouncing forever.
	tracker *dupdet.Tracker
	stats   Stats
	state   stateVar
	log     *logging.Logger
}

// NewBridge wires two already-connected endpoints into a bridge. nameA and
// nameB only label log lines and statistics.
func NewBridge(a, b Endpoint, nameA, nameB string, hello proto.Hello, log *logging.Logger) *Bridge {
	return &Bridge{
		a:       a,
		b:       b,
		nameA:   nameA,
		nameB:   nameB,
		hello:   hello,
		tracker: dupdet.NewTracker(),
		log:     log,
	}
}

// State returns the current session state.
func (b *Bridge) State() State {
	return b.state.get()
}

// Stats returns a snapshot of the per-direction forward counters.
func (b *Bridge) Stats() Snapshot {
	return b.stats.Snapshot()
}

// Run authenticates both endpoints and relays until one side closes, the
// context is cancelled, or an endpoint write fails. It drains and closes
// both endpoints before returning.
func (b *Bridge) Run(ctx context.Context) error {
	b.state.advance(StateAuthenticating)
	if err := b.a.WriteHello(b.hello); err != nil {
		b.drain(nil)
		return fmt.Errorf("relay: authenticate %s: %w", b.nameA, err)
	}
	if err := b.b.WriteHello(b.hello); err != nil {
		b.drain(nil)
		return fmt.Errorf("relay: authenticate %s: %w", b.nameB, err)
	}

	b.state.advance(StateRelaying)
	b.log.Noticef("bridge established between %s and %s", b.nameA, b.nameB)

	var wg sync.WaitGroup
	done := make(chan string, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.forward(b.a, b.b, &b.stats.AToB)
		done <- b.nameA
	}()
	go func() {
		defer wg.Done()
		b.forward(b.b, b.a, &b.stats.BToA)
		done <- b.nameB
	}()

	stopStats := make(chan struct{})
	go b.reportStats(stopStats)

	select {
	case name := <-done:
		b.log.Noticef("connection to %s closed", name)
	case <-ctx.Done():
		b.log.Noticef("shutdown requested")
	}
	close(stopStats)
	b.drain(&wg)
	return nil
}

// forward runs one direction: read, fingerprint, suppress duplicates,
// forward, count. A read or write error ends the direction; individual
// frames are never retried.
func (b *Bridge) forward(src, dst Endpoint, counter *atomic.Uint64) {
	for {
		data, err := src.ReadFrame()
		if err != nil {
			return
		}
		if b.tracker.IsDuplicate(dupdet.Fingerprint(data)) {
			continue
		}
		if err := dst.WriteFrame(data); err != nil {
			return
		}
		counter.Add(1)
	}
}

func (b *Bridge) reportStats(stop <-chan struct{}) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := b.stats.Snapshot()
			b.log.Noticef("stats: %s -> %s: %d | %s -> %s: %d",
				b.nameA, b.nameB, snap.AToB, b.nameB, b.nameA, snap.BToA)
		}
	}
}

// drain sends best-effort close frames, which also unblocks any forwarding
// loop still parked in a read, then waits the loops out.
func (b *Bridge) drain(wg *sync.WaitGroup) {
	b.state.advance(StateDraining)
	_ = b.a.CloseNormal("bridge shutdown")
	_ = b.b.CloseNormal("bridge shutdown")
	if wg != nil {
		wg.Wait()
	}
	b.state.advance(StateClosed)
}

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gologging "gopkg.in/op/go-logging.v1"

	"mlesclient/internal/logging"
	"mlesclient/internal/proto"
)

func testLogger(t *testing.T) *gologging.Logger {
	t.Helper()
	backend, err := logging.New("", "ERROR", true)
	if err != nil {
		t.Fatalf("logging backend: %v", err)
	}
	return backend.GetLogger("test")
}

type fakeEndpoint struct {
	in chan []byte

	mu     sync.Mutex
	wrote  [][]byte
	hellos []proto.Hello
	closed bool

	done     chan struct{}
	writeErr error
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		in:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeEndpoint) WriteHello(h proto.Hello) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hellos = append(f.hellos, h)
	return nil
}

func (f *fakeEndpoint) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return nil, errors.New("remote closed")
		}
		return data, nil
	case <-f.done:
		return nil, errors.New("connection closed")
	}
}

func (f *fakeEndpoint) WriteFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.wrote = append(f.wrote, append([]byte(nil), data...))
	return nil
}

func (f *fakeEndpoint) CloseNormal(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeEndpoint) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.wrote))
	copy(out, f.wrote)
	return out
}

func (f *fakeEndpoint) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var testHello = proto.Hello{UID: "bridge", Channel: "lobby", Auth: "00d1e2f3a4b5c697"}

func TestBridgeSuppressesDuplicates(t *testing.T) {
	a := newFakeEndpoint()
	b := newFakeEndpoint()
	br := NewBridge(a, b, "s1", "s2", testHello, testLogger(t))

	f1 := []byte("frame-one")
	f2 := []byte("frame-two")
	a.in <- f1
	a.in <- f1
	a.in <- f2
	close(a.in)

	if err := br.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := b.written()
	if len(got) != 2 || !bytes.Equal(got[0], f1) || !bytes.Equal(got[1], f2) {
		t.Fatalf("b received %q", got)
	}
	snap := br.Stats()
	if snap.AToB != 2 {
		t.Fatalf("a->b counter = %d, want 2", snap.AToB)
	}
	if br.State() != StateClosed {
		t.Fatalf("state = %v, want closed", br.State())
	}
	if len(a.hellos) != 1 || len(b.hellos) != 1 {
		t.Fatalf("hello counts: a=%d b=%d", len(a.hellos), len(b.hellos))
	}
	if !a.wasClosed() || !b.wasClosed() {
		t.Fatalf("endpoints not closed on drain")
	}
}

func TestBridgeSuppressesEcho(t *testing.T) {
	a := newFakeEndpoint()
	b := newFakeEndpoint()
	br := NewBridge(a, b, "s1", "s2", testHello, testLogger(t))

	frame := []byte("echoed frame")
	a.in <- frame

	runDone := make(chan error, 1)
	go func() { runDone <- br.Run(context.Background()) }()

	waitFor(t, func() bool { return len(b.written()) == 1 })
	// The remote at b echoes the frame verbatim; the shared tracker must
	// swallow it instead of sending it back to a.
	b.in <- frame
	close(a.in)
	if err := <-runDone; err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := a.written(); len(got) != 0 {
		t.Fatalf("a received echoed frame back: %q", got)
	}
	if snap := br.Stats(); snap.BToA != 0 {
		t.Fatalf("b->a counter = %d, want 0", snap.BToA)
	}
}

func TestBridgeOrderPreserved(t *testing.T) {
	a := newFakeEndpoint()
	b := newFakeEndpoint()
	br := NewBridge(a, b, "s1", "s2", testHello, testLogger(t))

	var frames [][]byte
	for i := 0; i < 50; i++ {
		frames = append(frames, []byte(fmt.Sprintf("frame %03d", i)))
	}

	// More frames than the endpoint buffers; feed while Run consumes.
	runDone := make(chan error, 1)
	go func() { runDone <- br.Run(context.Background()) }()
	for _, f := range frames {
		a.in <- f
	}
	close(a.in)

	if err := <-runDone; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := b.written()
	if len(got) != len(frames) {
		t.Fatalf("forwarded %d frames, want %d", len(got), len(frames))
	}
	for i := range frames {
		if !bytes.Equal(got[i], frames[i]) {
			t.Fatalf("frame %d out of order: %q", i, got[i])
		}
	}
}

func TestBridgeWriteFailureEndsSession(t *testing.T) {
	a := newFakeEndpoint()
	b := newFakeEndpoint()
	b.writeErr = errors.New("sink broken")
	br := NewBridge(a, b, "s1", "s2", testHello, testLogger(t))

	a.in <- []byte("doomed")

	if err := br.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if br.State() != StateClosed {
		t.Fatalf("state = %v, want closed", br.State())
	}
	if snap := br.Stats(); snap.AToB != 0 {
		t.Fatalf("a->b counter = %d after failed write", snap.AToB)
	}
}

func TestBridgeCancellation(t *testing.T) {
	a := newFakeEndpoint()
	b := newFakeEndpoint()
	br := NewBridge(a, b, "s1", "s2", testHello, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- br.Run(ctx) }()

	waitFor(t, func() bool { return br.State() == StateRelaying })
	cancel()
	if err := <-runDone; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if br.State() != StateClosed {
		t.Fatalf("state = %v, want closed", br.State())
	}
	if !a.wasClosed() || !b.wasClosed() {
		t.Fatalf("endpoints not closed after cancellation")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

// internal/relay/session.go

// Package relay forwards frames between two endpoints: either two relay
// servers speaking the same wire protocol, or one relay server and an MQTT
// broker. Every frame passes through duplicate suppression; the bridge never
// decrypts, it forwards ciphertext as-is.
package relay

import (
	"fmt"
	"sync/atomic"

	"mlesclient/internal/proto"
)

// State is the relay session lifecycle. Transitions only move forward; a
// Closed session is never reused.
type State uint32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateRelaying
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateRelaying:
		return "relaying"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

type stateVar struct {
	v atomic.Uint32
}

func (s *stateVar) get() State {
	return State(s.v.Load())
}

// advance moves to next unless the session has already moved past it.
func (s *stateVar) advance(next State) bool {
	for {
		cur := s.v.Load()
		if State(cur) >= next {
			return false
		}
		if s.v.CompareAndSwap(cur, uint32(next)) {
			return true
		}
	}
}

// Endpoint is the transport surface one side of a bridge consumes: ordered
// binary frames in and out, plus the connect-time hello and a best-effort
// close notification.
type Endpoint interface {
	WriteHello(proto.Hello) error
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	CloseNormal(reason string) error
}

// Stats counts forwarded frames per direction. Writers increment atomically;
// the periodic report reads without further coordination, which is fine for
// operator telemetry.
type Stats struct {
	AToB atomic.Uint64
	BToA atomic.Uint64
}

// Snapshot is a point-in-time read of both counters.
type Snapshot struct {
	AToB uint64
	BToA uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{AToB: s.AToB.Load(), BToA: s.BToA.Load()}
}

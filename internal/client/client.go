// internal/client/client.go

// Package client runs the terminating end of a channel: it decrypts inbound
// frames, suppresses redelivered messages, and encrypts outbound chat lines.
// Rendering stays outside; the session talks to a Display sink.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"mlesclient/internal/codec"
	"mlesclient/internal/dupdet"
	"mlesclient/internal/proto"
)

// wireTimeFormat is the timestamp prefix carried inside every encrypted chat
// line: RFC 3339 UTC without sub-seconds.
const wireTimeFormat = "2006-01-02T15:04:05Z"

// Endpoint is the connection surface the session consumes.
type Endpoint interface {
	WriteHello(proto.Hello) error
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	CloseNormal(reason string) error
}

// Display receives everything the session wants shown. Implementations own
// formatting, colors and terminal handling.
type Display interface {
	// Joined reports another participant's join announcement.
	Joined(uid string)
	// Message reports a chat line from another participant. ts is the
	// sender's wire timestamp.
	Message(ts, sender, text string)
	// Self reports the operator's own line at send time.
	Self(ts, text string)
}

// Session is one interactive channel membership. Create with New, run once
// with Run.
type Session struct {
	conn    Endpoint
	key     [codec.KeySize]byte
	uid     string
	channel string
	hello   proto.Hello
	tracker *dupdet.Tracker
	display Display
	input   io.Reader
	log     *logging.Logger
}

// New assembles a session over an already-connected endpoint. input supplies
// the operator's chat lines (stdin in the real binary).
func New(conn Endpoint, key [codec.KeySize]byte, hello proto.Hello, display Display, input io.Reader, log *logging.Logger) *Session {
	return &Session{
		conn:    conn,
		key:     key,
		uid:     hello.UID,
		channel: hello.Channel,
		hello:   hello,
		tracker: dupdet.NewTracker(),
		display: display,
		input:   input,
		log:     log,
	}
}

// Run authenticates and processes the channel until the connection drops,
// the input source ends, or the context is cancelled. A best-effort close
// frame is sent on the way out.
func (s *Session) Run(ctx context.Context) error {
	if err := s.conn.WriteHello(s.hello); err != nil {
		return fmt.Errorf("client: authenticate: %w", err)
	}

	recvDone := make(chan struct{})
	sendFailed := make(chan error, 1)
	go func() {
		s.receiveLoop()
		close(recvDone)
	}()
	go func() {
		// Input running dry does not end the session; the channel stays
		// open for inbound traffic until the connection drops.
		if err := s.inputLoop(); err != nil {
			sendFailed <- err
		}
	}()

	select {
	case <-recvDone:
	case err := <-sendFailed:
		s.log.Errorf("send failed: %v", err)
	case <-ctx.Done():
	}
	_ = s.conn.CloseNormal("client shutdown")
	return nil
}

// receiveLoop decrypts and dispatches inbound frames. Frames that do not
// decrypt are discarded silently and never reach the duplicate tracker.
func (s *Session) receiveLoop() {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		plaintext, ok := codec.Decrypt(s.key, frame)
		if !ok {
			continue
		}
		if s.tracker.IsDuplicate(dupdet.Fingerprint(plaintext)) {
			continue
		}
		s.dispatch(string(plaintext))
	}
}

// dispatch routes one fresh plaintext: join announcements are JSON with a
// uid, chat lines are "<timestamp> <sender>:<text>". The session's own
// traffic is already on screen and is dropped here.
func (s *Session) dispatch(msg string) {
	if uid, ok := proto.JoinUID([]byte(msg)); ok {
		if uid != s.uid {
			s.display.Joined(uid)
		}
		return
	}
	ts, rest, ok := strings.Cut(msg, " ")
	if !ok {
		return
	}
	sender, text, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	if sender == s.uid {
		return
	}
	s.display.Message(ts, sender, text)
}

// inputLoop encrypts and sends operator lines until the input source ends.
// Empty lines are ignored; a send failure is returned and ends the session.
func (s *Session) inputLoop() error {
	scanner := bufio.NewScanner(s.input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.Send(line); err != nil {
			return err
		}
	}
	return nil
}

// Send timestamps, encrypts and transmits one chat line, echoing it to the
// display.
func (s *Session) Send(text string) error {
	ts := time.Now().UTC().Format(wireTimeFormat)
	formatted := fmt.Sprintf("%s %s:%s", ts, s.uid, text)
	frame, err := codec.Encrypt(s.key, []byte(formatted))
	if err != nil {
		return err
	}
	if err := s.conn.WriteFrame(frame); err != nil {
		return err
	}
	s.display.Self(ts, text)
	return nil
}

// internal/proto/hello.go
package proto

import (
	"encoding/json"
	"fmt"
)

// MaxHelloSize caps the connect hello; everything past this is garbage, not
// a handshake.
const MaxHelloSize = 4 << 10

// Hello is the one structured control message of the protocol. It is sent as
// a text frame immediately after the transport connects, before any data
// frame in either direction.
type Hello struct {
	UID     string `json:"uid"`
	Channel string `json:"channel"`
	Auth    string `json:"auth"`
}

func EncodeHello(h Hello) ([]byte, error) {
	if h.UID == "" || h.Channel == "" {
		return nil, fmt.Errorf("proto: hello missing uid or channel")
	}
	if h.Auth == "" {
		return nil, fmt.Errorf("proto: hello missing auth token")
	}
	return json.Marshal(h)
}

func DecodeHello(data []byte) (Hello, error) {
	if len(data) > MaxHelloSize {
		return Hello{}, fmt.Errorf("proto: hello too large: %d", len(data))
	}
	var h Hello
	if err := json.Unmarshal(data, &h); err != nil {
		return Hello{}, err
	}
	if h.UID == "" || h.Channel == "" {
		return Hello{}, fmt.Errorf("proto: hello missing uid or channel")
	}
	return h, nil
}

// JoinUID extracts the uid from a decrypted join announcement. Join
// announcements are the only JSON payloads inside the channel encryption;
// chat lines are plain text and fail the parse here.
func JoinUID(plaintext []byte) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return "", false
	}
	uid, ok := m["uid"].(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

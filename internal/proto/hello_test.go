package proto

import (
	"strings"
	"testing"
)

func TestHelloRoundTrip(t *testing.T) {
	in := Hello{UID: "alice", Channel: "lobby", Auth: "00d1e2f3a4b5c697"}
	data, err := EncodeHello(in)
	if err != nil {
		t.Fatalf("EncodeHello failed: %v", err)
	}
	got, err := DecodeHello(data)
	if err != nil {
		t.Fatalf("DecodeHello failed: %v", err)
	}
	if got != in {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestHelloRejectsIncomplete(t *testing.T) {
	if _, err := EncodeHello(Hello{UID: "alice"}); err == nil {
		t.Fatalf("encoded hello without channel")
	}
	if _, err := EncodeHello(Hello{UID: "alice", Channel: "lobby"}); err == nil {
		t.Fatalf("encoded hello without auth token")
	}
	if _, err := DecodeHello([]byte(`{"uid":"alice"}`)); err == nil {
		t.Fatalf("decoded hello without channel")
	}
	if _, err := DecodeHello([]byte("not json")); err == nil {
		t.Fatalf("decoded garbage")
	}
}

func TestHelloSizeLimit(t *testing.T) {
	big := `{"uid":"` + strings.Repeat("a", MaxHelloSize) + `","channel":"c","auth":"x"}`
	if _, err := DecodeHello([]byte(big)); err == nil {
		t.Fatalf("decoded oversized hello")
	}
}

func TestJoinUID(t *testing.T) {
	uid, ok := JoinUID([]byte(`{"uid":"bob"}`))
	if !ok || uid != "bob" {
		t.Fatalf("JoinUID = %q, %v", uid, ok)
	}
	if _, ok := JoinUID([]byte("2024-01-02T03:04:05Z bob:hi")); ok {
		t.Fatalf("chat line parsed as join announcement")
	}
	if _, ok := JoinUID([]byte(`{"other":"field"}`)); ok {
		t.Fatalf("json without uid parsed as join announcement")
	}
}

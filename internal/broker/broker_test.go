package broker

import "testing"

func TestAddr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"mqtt://broker.example", "tcp://broker.example:1883"},
		{"mqtt://broker.example:8883", "tcp://broker.example:8883"},
		{"tcp://10.0.0.7:1884", "tcp://10.0.0.7:1884"},
	}
	for _, tc := range cases {
		got, err := Addr(tc.in)
		if err != nil {
			t.Fatalf("Addr(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Addr(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddrRejectsHostless(t *testing.T) {
	for _, in := range []string{"", "mqtt://", "not a url ://"} {
		if _, err := Addr(in); err == nil {
			t.Fatalf("Addr(%q) succeeded", in)
		}
	}
}

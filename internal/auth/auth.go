// internal/auth/auth.go
package auth

import (
	"fmt"
	"os"

	"github.com/dchest/siphash"
)

// SecretEnv is the optional environment variable whose value is mixed into
// the admission token. Absence is valid.
const SecretEnv = "MLES_KEY"

// Token derives the channel admission token sent in the connect hello:
// SipHash-2-4 over uid||channel||secret, rendered as 16 hex digits. It gates
// admission to a shared channel; it is not a signature and proves nothing
// against an active adversary.
func Token(uid, channel, secret string) string {
	buf := make([]byte, 0, len(uid)+len(channel)+len(secret))
	buf = append(buf, uid...)
	buf = append(buf, channel...)
	if secret != "" {
		buf = append(buf, secret...)
	}
	return fmt.Sprintf("%016x", siphash.Hash(0, 0, buf))
}

// SecretFromEnv returns the shared secret from the environment, or "" when
// unset.
func SecretFromEnv() string {
	return os.Getenv(SecretEnv)
}

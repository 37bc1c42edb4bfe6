// Package xid generates the device-local record ids. Ids carry a short
// entity prefix (txn, txi, inv, mov, cust) so a bare id in a log line or a
// sync payload identifies its table, and a nanosecond timestamp so ids for
// one entity sort in creation order. Remote-assigned ids live in the
// separate RemoteID field and never collide with these.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

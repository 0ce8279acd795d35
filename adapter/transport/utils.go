package transport

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sync/atomic"
)

var callCounter uint64

func generateCallID() string {
	id := make([]byte, 8)
	counter := atomic.AddUint64(&callCounter, 1)

	if _, err := io.ReadFull(rand.Reader, id); err != nil {
		// rand failure leaves the counter as the only entropy source
		binary.BigEndian.PutUint64(id, counter)
		return hex.EncodeToString(id)
	}

	suffix := make([]byte, 8)
	binary.BigEndian.PutUint64(suffix, counter)
	return hex.EncodeToString(id) + "-" + hex.EncodeToString(suffix[4:])
}

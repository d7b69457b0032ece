package main

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tobias-Fischer/dvstream/internal/transport"
)

// startMockStream feeds a synthetic DVXplorer word stream into the loopback
// transport, for bring-up without hardware. The returned func stops the
// generator and closes the transport.
func startMockStream(lb *transport.Loopback, logger zerolog.Logger) func() {
	stop := make(chan struct{})
	go func() {
		logger.Info().Msg("mock stream generator running")
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		var ts uint16
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !lb.Feed(mockChunk(&ts, rng)) {
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		lb.Close()
	}
}

// mockChunk emits bursts of timestamp, column-address, row-group and ON
// pixel-group words at the native 640x480 geometry.
func mockChunk(ts *uint16, rng *rand.Rand) []byte {
	buf := make([]byte, 0, 128)
	word := func(w uint16) {
		buf = binary.LittleEndian.AppendUint16(buf, w)
	}
	for burst := 0; burst < 16; burst++ {
		*ts = (*ts + 25) & 0x7FFF
		word(0x8000 | *ts)
		word(0x1000 | uint16(rng.Intn(480)))
		word(0x4000 | uint16(rng.Intn(64)))
		word(0x3000 | uint16(rng.Intn(256)))
	}
	return buf
}

package cache

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/notnil/chess"
	"github.com/zeebo/blake3"
)

// Key identifies a position in the cache. It is a BLAKE3 keyed hash of the
// placement, side to move, castling rights and en passant square, so the
// same position reached at different move counters shares an entry.
type Key [32]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:8])
}

// positionDomainKey separates cache keys from any other BLAKE3 use. Changing
// it invalidates every saved snapshot.
var positionDomainKey = [32]byte{
	's', 'h', 'a', 'l', 'l', 'o', 'w', 'r', 'e', 'd', '.', 'c', 'a', 'c', 'h', 'e',
	'.', 'p', 'o', 's', 'i', 't', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0,
}

var hasherPool = sync.Pool{
	New: func() any {
		h, err := blake3.NewKeyed(positionDomainKey[:])
		if err != nil {
			panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
		}
		return h
	},
}

// KeyOf returns the cache key for pos.
func KeyOf(pos *chess.Position) Key {
	return KeyOfFEN(pos.String())
}

// KeyOfFEN returns the cache key for a FEN string. Halfmove and fullmove
// counters are ignored.
func KeyOfFEN(fen string) Key {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}

	h := hasherPool.Get().(*blake3.Hasher)
	defer hasherPool.Put(h)
	h.Reset()
	_, _ = h.Write([]byte(strings.Join(fields, " ")))

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

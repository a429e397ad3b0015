package gameid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Crockford's base32 alphabet, as used by TypeID.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Prefix tags an identifier with its provenance.
type Prefix string

const (
	Session  Prefix = "sess"
	Room     Prefix = "room"
	Table    Prefix = "tbl"
	Hand     Prefix = "hand"
	Ledger   Prefix = "led"
	Event    Prefix = "evt"
	Bundle   Prefix = "bndl"
	Case     Prefix = "case"
	Decision Prefix = "dec"
	Message  Prefix = "msg"
)

// RandSource interface for dependency injection of randomness.
type RandSource interface {
	Intn(n int) int
}

// Generator produces prefixed, time-ordered identifiers. The zero value uses
// crypto/rand and the wall clock; inject randSource and now for determinism.
type Generator struct {
	randSource RandSource
	now        func() time.Time
}

// NewGenerator creates a generator with optional RandSource and clock.
func NewGenerator(randSource RandSource, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{randSource: randSource, now: now}
}

// New creates an identifier like "hand_01h455vb4pex5vsknk084sn02q".
func (g *Generator) New(prefix Prefix) string {
	return string(prefix) + "_" + encodeBase32(g.generateUUIDv7())
}

// New creates an identifier using the default generator.
func New(prefix Prefix) string {
	return NewGenerator(nil, nil).New(prefix)
}

// generateUUIDv7 creates a 128-bit UUIDv7: 48-bit millisecond timestamp,
// version and variant bits, the rest random.
func (g *Generator) generateUUIDv7() [16]byte {
	var uuid [16]byte

	now := g.now().UnixMilli()
	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	if g.randSource != nil {
		for i := 6; i < 16; i++ {
			uuid[i] = byte(g.randSource.Intn(256))
		}
	} else {
		if _, err := rand.Read(uuid[6:]); err != nil {
			panic("failed to generate random bytes: " + err.Error())
		}
	}

	// Version 7, variant 10.
	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return uuid
}

// encodeBase32 encodes a 128-bit UUID as a 26-character base32 string.
func encodeBase32(data [16]byte) string {
	result := make([]byte, 26)

	for i := 0; i < 26; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8
		if byteIndex < 16 {
			if bitIndex <= 3 {
				value = (data[byteIndex] >> (3 - bitIndex)) & 0x1f
			} else {
				value = (data[byteIndex] << (bitIndex - 3)) & 0x1f
				if byteIndex+1 < 16 {
					value |= data[byteIndex+1] >> (11 - bitIndex)
				}
			}
		}
		result[i] = alphabet[value]
	}

	return string(result)
}

// Validate checks an identifier's prefix and base32 body.
func Validate(id string, prefix Prefix) error {
	want := string(prefix) + "_"
	if !strings.HasPrefix(id, want) {
		return fmt.Errorf("id %q missing prefix %q", id, want)
	}
	body := id[len(want):]
	if len(body) != 26 {
		return fmt.Errorf("id body must be exactly 26 characters, got %d", len(body))
	}
	if body[0] > '7' {
		return fmt.Errorf("id body first character must be 0-7, got %c", body[0])
	}
	for i, char := range body {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}

package gameid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRand struct{ n int }

func (f *fakeRand) Intn(n int) int { return f.n % n }

func TestNewHasPrefixAndLength(t *testing.T) {
	id := New(Hand)
	assert.True(t, strings.HasPrefix(id, "hand_"))
	assert.Len(t, id, len("hand_")+26)
	require.NoError(t, Validate(id, Hand))
}

func TestGeneratorDeterministic(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	g1 := NewGenerator(&fakeRand{n: 7}, now)
	g2 := NewGenerator(&fakeRand{n: 7}, now)
	assert.Equal(t, g1.New(Session), g2.New(Session))
}

func TestIdsAreTimeOrdered(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	early := NewGenerator(&fakeRand{}, func() time.Time { return base }).New(Message)
	late := NewGenerator(&fakeRand{}, func() time.Time { return base.Add(time.Second) }).New(Message)
	assert.Less(t, early, late)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		prefix  Prefix
		wantErr bool
	}{
		{"valid", New(Table), Table, false},
		{"wrong prefix", New(Table), Hand, true},
		{"missing separator", "tbl01234567890123456789012345", Table, true},
		{"short body", "tbl_0123", Table, true},
		{"bad character", "tbl_0123456789012345678901234!", Table, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id, tt.prefix)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

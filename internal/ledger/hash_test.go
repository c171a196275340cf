package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference digests were produced by an independent implementation of the
// preimage: sha256("custody/entry/v1\x00" + canonical JSON).
const (
	vectorHash0 = "dd11a0e6e360d45ae372deab67ff9344106a18138f06fd58a0620592a62c81d7"
	vectorHash1 = "b719b3854d28e42fb319ead78ac25d56a5165dea489fecde61978084217158e8"
)

func vectorEntry0() Entry {
	return Entry{
		Index:     0,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC),
		EventType: "DOC_SERVED",
		Actor:     "u1",
		TenantID:  "t1",
		Payload:   Object{"doc": String("A")},
		PrevHash:  GenesisHash,
	}
}

func TestComputeHash_ReferenceVectors(t *testing.T) {
	e0 := vectorEntry0()
	h0, err := HashEntry(e0)
	require.NoError(t, err)
	assert.Equal(t, vectorHash0, h0)

	e1 := Entry{
		Index:     1,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		EventType: "LOGIN",
		Actor:     "u2",
		TenantID:  "t1",
		Payload:   Object{},
		PrevHash:  h0,
	}
	h1, err := HashEntry(e1)
	require.NoError(t, err)
	assert.Equal(t, vectorHash1, h1)
}

func TestComputeHash_Format(t *testing.T) {
	h := MustHashEntry(vectorEntry0())
	assert.Len(t, h, HashLength)
	assert.True(t, IsHash(h))
	assert.Equal(t, strings.ToLower(h), h)
}

func TestComputeHash_Deterministic(t *testing.T) {
	e := vectorEntry0()
	e.Payload = Object{"z": Int(1), "a": Array{String("x"), Int(2)}, "m": Object{"k": Bool(true)}}
	first := MustHashEntry(e)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, MustHashEntry(e))
	}
}

func TestComputeHash_NilPayloadEqualsEmpty(t *testing.T) {
	e := vectorEntry0()
	e.Payload = nil
	withNil := MustHashEntry(e)
	e.Payload = Object{}
	assert.Equal(t, withNil, MustHashEntry(e))
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base := vectorEntry0()
	baseHash := MustHashEntry(base)

	mutations := map[string]func(e *Entry){
		"index":      func(e *Entry) { e.Index = 1 },
		"prev_hash":  func(e *Entry) { e.PrevHash = strings.Repeat("1", HashLength) },
		"timestamp":  func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"event_type": func(e *Entry) { e.EventType = "LOGIN" },
		"actor":      func(e *Entry) { e.Actor = "u9" },
		"tenant_id":  func(e *Entry) { e.TenantID = "t2" },
		"payload":    func(e *Entry) { e.Payload = Object{"doc": String("B")} },
		"nonce":      func(e *Entry) { e.Nonce = 1 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := vectorEntry0()
			mutate(&e)
			assert.NotEqual(t, baseHash, MustHashEntry(e))
		})
	}
}

func TestComputeHash_SubMicrosecondIgnored(t *testing.T) {
	a := vectorEntry0()
	b := vectorEntry0()
	b.Timestamp = b.Timestamp.Add(999 * time.Nanosecond)
	assert.Equal(t, MustHashEntry(a), MustHashEntry(b))
}

func TestComputeHash_TimezoneIndependent(t *testing.T) {
	a := vectorEntry0()
	b := vectorEntry0()
	b.Timestamp = b.Timestamp.In(time.FixedZone("EST", -5*3600))
	assert.Equal(t, MustHashEntry(a), MustHashEntry(b))
}

func TestComputeHash_SerializationError(t *testing.T) {
	e := vectorEntry0()
	e.Payload = Object{"bad": String("\xff")}

	_, err := HashEntry(e)
	require.Error(t, err)
	assert.Equal(t, CodeSerialization, CodeOf(err))
	assert.True(t, IsValidation(err))
}

func TestGenesisHash(t *testing.T) {
	assert.Len(t, GenesisHash, HashLength)
	assert.True(t, IsHash(GenesisHash))
	assert.Equal(t, strings.Repeat("0", HashLength), GenesisHash)
	assert.NotEqual(t, GenesisHash, MustHashEntry(vectorEntry0()))
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.UTC)
	text := FormatTimestamp(ts)
	assert.Equal(t, "2026-03-04T05:06:07.891234Z", text)

	parsed, err := ParseTimestamp(text)
	require.NoError(t, err)
	assert.True(t, NormalizeTimestamp(ts).Equal(parsed))
	assert.Equal(t, text, FormatTimestamp(parsed))
}

func TestParseTimestamp_RejectsOtherLayouts(t *testing.T) {
	_, err := ParseTimestamp("2026-03-04T05:06:07Z")
	assert.Error(t, err)
	_, err = ParseTimestamp("2026-03-04T05:06:07.891234+00:00")
	assert.Error(t, err)
}

func TestIsHash(t *testing.T) {
	assert.False(t, IsHash(""))
	assert.False(t, IsHash(strings.Repeat("A", HashLength)))
	assert.False(t, IsHash(strings.Repeat("0", HashLength-1)))
	assert.True(t, IsHash(vectorHash0))
}

package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_JSONShape(t *testing.T) {
	e := vectorEntry0()
	e.Hash = vectorHash0

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2026-01-02T03:04:05.123456Z", raw["timestamp"])
	assert.Equal(t, "DOC_SERVED", raw["eventType"])
	assert.Equal(t, "t1", raw["tenantId"])
	assert.Equal(t, GenesisHash, raw["prevHash"])
	assert.Equal(t, vectorHash0, raw["hash"])
}

func TestEntry_JSONRoundTripPreservesHash(t *testing.T) {
	e := vectorEntry0()
	e.Hash = vectorHash0

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e.Index, back.Index)
	assert.True(t, e.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, vectorHash0, MustHashEntry(back))
}

func TestEntry_UnmarshalRejectsBadTimestamp(t *testing.T) {
	var e Entry
	err := json.Unmarshal([]byte(`{"index":0,"timestamp":"yesterday","payload":{}}`), &e)
	assert.Error(t, err)
}

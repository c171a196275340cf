package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"doc":"A","pages":12,"served":true,"notes":null,"tags":["x","y"],"big":9223372036854775807}`))
	require.NoError(t, err)

	assert.Equal(t, String("A"), obj["doc"])
	assert.Equal(t, Int(12), obj["pages"])
	assert.Equal(t, Bool(true), obj["served"])
	assert.Equal(t, Null{}, obj["notes"])
	assert.Equal(t, Array{String("x"), String("y")}, obj["tags"])
	assert.Equal(t, Int(9223372036854775807), obj["big"])
}

func TestParseObject_Rejects(t *testing.T) {
	cases := map[string]string{
		"float":         `{"n":1.5}`,
		"exponent":      `{"n":1e3}`,
		"not an object": `[1,2]`,
		"trailing data": `{"a":1} {"b":2}`,
		"malformed":     `{"a":`,
		"overflow":      `{"n":9223372036854775808}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseObject([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestObject_JSONRoundTrip(t *testing.T) {
	obj := Object{"b": Int(2), "a": Object{"nested": Array{Bool(false), Null{}}}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"nested":[false,null]},"b":2}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestObject_UnmarshalNull(t *testing.T) {
	var holder struct {
		Payload Object `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"payload":null}`), &holder))
	assert.Nil(t, holder.Payload)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s":   "x",
		"i":   7,
		"u":   uint32(8),
		"b":   false,
		"n":   nil,
		"arr": []any{1, "two"},
		"m":   map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	assert.Equal(t, Object{
		"s":   String("x"),
		"i":   Int(7),
		"u":   Int(8),
		"b":   Bool(false),
		"n":   Null{},
		"arr": Array{Int(1), String("two")},
		"m":   Object{"k": String("v")},
	}, v)
}

func TestFromGo_Rejects(t *testing.T) {
	_, err := FromGo(2.5)
	assert.Error(t, err)

	_, err = FromGo(uint64(1) << 63)
	assert.Error(t, err)

	_, err = FromGo(struct{}{})
	assert.Error(t, err)

	_, err = FromGo(map[string]any{"deep": []any{map[string]any{"f": float32(1)}}})
	assert.Error(t, err)
}

func TestToGo_RoundTrip(t *testing.T) {
	obj := Object{"a": Array{Int(1), Null{}}, "b": Object{"c": Bool(true)}, "d": String("s")}
	back, err := FromGo(ToGo(obj))
	require.NoError(t, err)
	assert.Equal(t, obj, back)
}

func TestSortedKeys(t *testing.T) {
	obj := Object{"b": Null{}, "a": Null{}, "\uff61": Null{}, "\U0001F600": Null{}}
	assert.Equal(t, []string{"a", "b", "\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestSortedKeys_OrdersByNFCForm(t *testing.T) {
	obj := Object{"f": Null{}, "e\u0301": Null{}, "a": Null{}}
	assert.Equal(t, []string{"a", "f", "e\u0301"}, obj.SortedKeys())
}

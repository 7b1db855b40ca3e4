package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	v, err := Parse([]byte(`{"a":[1,"two",true,null],"b":{"c":-3}}`))
	require.NoError(t, err)

	assert.Equal(t, Object{
		"a": Array{Int(1), String("two"), Bool(true), Null{}},
		"b": Object{"c": Int(-3)},
	}, v)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"a":1.5}`},
		{"exponent", `[1e3]`},
		{"top-level null", `null`},
		{"out of range", `18446744073709551616`},
		{"malformed", `{"a":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

type sample struct {
	Name  string   `json:"name"`
	Count int64    `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample{Name: "café", Count: 1 << 60, Tags: []string{"a", "b"}}

	v, err := Encode(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Decode(v, &out))
	assert.Equal(t, in, out)
}

func TestEncodeRejectsFloats(t *testing.T) {
	_, err := Encode(struct {
		X float64 `json:"x"`
	}{X: 0.5})
	require.Error(t, err)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	v := Object{"name": String("x"), "count": Int(1), "extra": Bool(true)}

	var out sample
	err := Decode(v, &out)
	require.Error(t, err)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	v := Object{"name": Int(3)}

	var out sample
	require.Error(t, Decode(v, &out))
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{"b": Int(2), "a": Array{Null{}, String("s")}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[null,"s"],"b":2}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Int(1)))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"a": Int(2)}))
}

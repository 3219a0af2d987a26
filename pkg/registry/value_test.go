package registry

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/streamsketch/pkg/sketches"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in    any
		key   string
		num   float64
		isNum bool
	}{
		{"alice", "alice", 0, false},
		{"42", "42", 42, true},
		{"NaN", "NaN", 0, false},
		{json.Number("2.5"), "2.5", 2.5, true},
		{"7.0", "7", 7, true},
		{json.Number("7.0"), "7", 7, true},
		{"1e3", "1000", 1000, true},
		{json.Number("4.2e1"), "42", 42, true},
		{"-0.0", "0", 0, true},
		{"007", "7", 7, true},
		{"9007199254740993", "9007199254740993", 9007199254740992, true},
		{"1e400", "1e400", 0, false},
		{1e21, "1e+21", 1e21, true},
		{1.5, "1.5", 1.5, true},
		{float64(7), "7", 7, true},
		{float32(0.5), "0.5", 0.5, true},
		{42, "42", 42, true},
		{int32(-3), "-3", -3, true},
		{int64(1 << 40), "1099511627776", 1 << 40, true},
		{uint64(9), "9", 9, true},
		{true, "true", 0, false},
	}
	for _, tc := range cases {
		v, err := parseValue(tc.in)
		require.NoError(t, err, "%v", tc.in)
		assert.Equal(t, tc.key, v.key, "%v", tc.in)
		assert.Equal(t, tc.isNum, v.isNum, "%v", tc.in)
		if tc.isNum {
			assert.Equal(t, tc.num, v.num, "%v", tc.in)
		}
	}
}

func TestParseValue_NumericKeysAgree(t *testing.T) {
	for _, forms := range [][]any{
		{7, int64(7), 7.0, float32(7), "7", "7.0", json.Number("7"), json.Number("7.0"), json.Number("7e0")},
		{1000, 1e3, "1e3", json.Number("1E3"), json.Number("1000.00")},
		{0.25, "0.25", json.Number("2.5e-1")},
	} {
		want, err := parseValue(forms[0])
		require.NoError(t, err)
		for _, in := range forms[1:] {
			v, err := parseValue(in)
			require.NoError(t, err, "%v", in)
			assert.Equal(t, want, v, "%T %v", in, in)
		}
	}
}

func TestParseValue_Rejects(t *testing.T) {
	for _, in := range []any{nil, math.NaN(), math.Inf(1), []int{1}, map[string]any{}} {
		_, err := parseValue(in)
		assert.Equal(t, ErrBadValue, errors.Cause(err), "%v", in)
	}
}

func TestParseValues(t *testing.T) {
	vs, err := parseValues([]any{"a", 1}, false)
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	_, err = parseValues([]any{1, "a"}, true)
	assert.Equal(t, ErrBadValue, errors.Cause(err))
	assert.Contains(t, err.Error(), "value 1")

	vs, err = parseValues(nil, true)
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestSpec_Validate(t *testing.T) {
	assert.NoError(t, Spec{Name: "api.latency-p99_v2", Kind: sketches.RankSketchType}.Validate())

	for _, spec := range []Spec{
		{Name: "", Kind: sketches.ExactCounterType},
		{Name: "has space", Kind: sketches.ExactCounterType},
		{Name: "a/b", Kind: sketches.ExactCounterType},
		{Name: "ok", Kind: ""},
		{Name: "ok", Kind: "tdigest"},
	} {
		assert.Equal(t, ErrBadValue, errors.Cause(spec.Validate()), "%+v", spec)
	}
}

func TestParams_WithDefaults(t *testing.T) {
	d, ok := Defaults(sketches.BloomFilterType)
	require.True(t, ok)

	p := Params{Hashes: 7}.withDefaults(d)
	assert.Equal(t, 7, p.Hashes)
	assert.Equal(t, 1024, p.Bytes)
	assert.Equal(t, sketches.DefaultSeed, p.Seed)
	assert.Zero(t, p.K)
}

func TestParams_JSON(t *testing.T) {
	var spec Spec
	err := json.Unmarshal([]byte(`{"name":"s","kind":"count_min","params":{"buckets":64}}`), &spec)
	require.NoError(t, err)
	assert.Equal(t, sketches.CountMinSketchType, spec.Kind)
	assert.Equal(t, 64, spec.Params.Buckets)

	out, err := json.Marshal(Params{Precision: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"precision":10}`, string(out))
}

package reconcile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func inf() float64 { return math.Inf(1) }

func mustMarshal(t *testing.T, v Value) string {
	t.Helper()
	data, err := Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestParseKeepsOrderAndLiterals(t *testing.T) {
	src := `{"b":1,"a":[1,2.5,"x",null,true],"c":{"z":18446744073709551615,"y":-9223372036854775808}}`
	v, err := Parse([]byte(src))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, obj.Keys())
	assert.Equal(t, src, mustMarshal(t, v))

	_, err = Parse([]byte(`{"a":1} {}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestNumberInterpretations(t *testing.T) {
	u, ok := NewNumber("18446744073709551615").Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), u)

	_, ok = NewNumber("-1").Uint64()
	assert.False(t, ok)
	i, ok := NewNumber("-1").Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(-1), i)

	_, ok = NewNumber("1e400").Float64()
	assert.False(t, ok)

	_, err := Marshal(NumberFromFloat(math.NaN()))
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{`1`, `1.0`, true},
		{`1`, `1e0`, true},
		{`-1`, `18446744073709551615`, false},
		{`9223372036854775808`, `-9223372036854775808`, false},
		{`{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{`{"a":1}`, `{"a":1,"b":2}`, false},
		{`[1,2]`, `[2,1]`, false},
		{`null`, `false`, false},
		{`"1"`, `1`, false},
		{`[]`, `[]`, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Equal(MustParse(tt.a), MustParse(tt.b)), "%s vs %s", tt.a, tt.b)
	}
}

func TestObjectBuilding(t *testing.T) {
	obj := NewObject().With("x", Bool(true)).With("y", Null{}).With("x", String("again"))
	assert.Equal(t, []string{"x", "y"}, obj.Keys())
	assert.Equal(t, `{"x":"again","y":null}`, mustMarshal(t, obj))

	var zero Object
	zero.Set("k", Array(nil))
	assert.Equal(t, `{"k":[]}`, mustMarshal(t, zero))
}

func TestFromAny(t *testing.T) {
	type member struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	v, err := FromAny(map[string]interface{}{"members": []member{{ID: 1, Name: "a"}}})
	require.NoError(t, err)
	assert.True(t, Equal(MustParse(`{"members":[{"id":1,"name":"a"}]}`), v))

	same, err := FromAny(String("x"))
	require.NoError(t, err)
	assert.Equal(t, String("x"), same)

	_, err = FromAny(make(chan int))
	assert.Error(t, err)
}

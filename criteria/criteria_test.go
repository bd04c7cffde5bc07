package criteria_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/dblite/criteria"
)

func TestCompileEmpty(t *testing.T) {
	for _, c := range []criteria.Criteria{nil, {}} {
		cond, err := criteria.Compile(c)
		require.NoError(t, err)
		assert.True(t, cond.Empty())
		assert.Empty(t, cond.SQL)
		assert.Empty(t, cond.Args)
	}
}

func TestCompileEquality(t *testing.T) {
	cond, err := criteria.Compile(criteria.Criteria{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, `"name" = ?`, cond.SQL)
	assert.Equal(t, []any{"bob"}, cond.Args)
}

func TestCompileNilEquality(t *testing.T) {
	cond, err := criteria.Compile(criteria.Criteria{"name": nil})
	require.NoError(t, err)
	assert.Equal(t, `"name" IS ?`, cond.SQL)
	assert.Equal(t, []any{nil}, cond.Args)

	cond, err = criteria.Compile(criteria.Criteria{"name": criteria.Ne(nil)})
	require.NoError(t, err)
	assert.Equal(t, `"name" IS NOT ?`, cond.SQL)
}

func TestCompileAndOrderMatchesArgs(t *testing.T) {
	c := criteria.Criteria{
		"zeta":  1,
		"alpha": criteria.Between(10, 20),
		"mid":   criteria.In("x", "y", "z"),
	}
	cond, err := criteria.Compile(c)
	require.NoError(t, err)
	assert.Equal(t, `"alpha" BETWEEN ? AND ? AND "mid" IN (?, ?, ?) AND "zeta" = ?`, cond.SQL)
	assert.Equal(t, []any{int64(10), int64(20), "x", "y", "z", int64(1)}, cond.Args)
	assert.Equal(t, strings.Count(cond.SQL, "?"), len(cond.Args))
}

func TestCompileDeterministic(t *testing.T) {
	c := criteria.Criteria{"a": 1, "b": criteria.Gt(2), "c": "x", "d": criteria.Like("y%")}
	first, err := criteria.Compile(c)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := criteria.Compile(c)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompileOperators(t *testing.T) {
	tests := []struct {
		op   string
		val  any
		want string
		args []any
	}{
		{"=", 1, `"f" = ?`, []any{int64(1)}},
		{"eq", 1, `"f" = ?`, []any{int64(1)}},
		{"!=", 1, `"f" != ?`, []any{int64(1)}},
		{"<>", 1, `"f" != ?`, []any{int64(1)}},
		{"<", 1, `"f" < ?`, []any{int64(1)}},
		{"lte", 1, `"f" <= ?`, []any{int64(1)}},
		{">", 1, `"f" > ?`, []any{int64(1)}},
		{"GTE", 1, `"f" >= ?`, []any{int64(1)}},
		{"like", "a%", `"f" LIKE ?`, []any{"a%"}},
		{"not  like", "a%", `"f" NOT LIKE ?`, []any{"a%"}},
		{"glob", "a*", `"f" GLOB ?`, []any{"a*"}},
		{"is not", nil, `"f" IS NOT ?`, []any{nil}},
		{"in", []string{"a", "b"}, `"f" IN (?, ?)`, []any{"a", "b"}},
		{"not in", []any{1}, `"f" NOT IN (?)`, []any{int64(1)}},
		{"in", []any{}, `"f" IN ()`, nil},
		{"between", []int{1, 5}, `"f" BETWEEN ? AND ?`, []any{int64(1), int64(5)}},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			cond, err := criteria.Compile(criteria.Criteria{"f": criteria.Cond{Op: tc.op, Value: tc.val}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, cond.SQL)
			assert.Equal(t, len(tc.args), len(cond.Args))
			for i := range tc.args {
				assert.Equal(t, tc.args[i], cond.Args[i])
			}
		})
	}
}

func TestCompileMapOperator(t *testing.T) {
	cond, err := criteria.Compile(criteria.Criteria{"age": map[string]any{"op": ">", "value": 35}})
	require.NoError(t, err)
	assert.Equal(t, `"age" > ?`, cond.SQL)
	assert.Equal(t, []any{int64(35)}, cond.Args)
}

func TestCompileValuesAreBoundNotInterpolated(t *testing.T) {
	evil := `x'; DROP TABLE people; --`
	cond, err := criteria.Compile(criteria.Criteria{"name": evil})
	require.NoError(t, err)
	assert.NotContains(t, cond.SQL, "DROP")
	assert.Equal(t, []any{evil}, cond.Args)
}

func TestCompileInvalid(t *testing.T) {
	tests := map[string]criteria.Criteria{
		"unknown operator":  {"f": criteria.Cond{Op: "~=", Value: 1}},
		"bad field":         {"f; drop": 1},
		"non scalar":        {"f": []int{1, 2}},
		"map without value": {"f": map[string]any{"op": ">"}},
		"map extra keys":    {"f": map[string]any{"op": ">", "value": 1, "x": 2}},
		"op not string":     {"f": map[string]any{"op": 1, "value": 1}},
		"in scalar":         {"f": criteria.Cond{Op: "in", Value: 3}},
		"in nested":         {"f": criteria.In([]any{1, 2})},
		"between short":     {"f": criteria.Cond{Op: "between", Value: []any{1}}},
		"nil cond":          {"f": (*criteria.Cond)(nil)},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := criteria.Compile(c)
			require.ErrorIs(t, err, criteria.ErrInvalid)
		})
	}
}

func TestParse(t *testing.T) {
	c, err := criteria.ParseString(`{"age": {"op": ">", "value": 35}, "name": "b", "score": 1.5}`)
	require.NoError(t, err)

	cond, err := criteria.Compile(c)
	require.NoError(t, err)
	assert.Equal(t, `"age" > ? AND "name" = ? AND "score" = ?`, cond.SQL)
	assert.Equal(t, []any{int64(35), "b", 1.5}, cond.Args)
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		c, err := criteria.ParseString(in)
		require.NoError(t, err)
		assert.Nil(t, c)
	}
}

func TestParseNotObject(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"x"`, `42`, `{"a":`} {
		_, err := criteria.ParseString(in)
		require.ErrorIs(t, err, criteria.ErrInvalid, in)
	}
}

func TestParseTrailingData(t *testing.T) {
	for _, in := range []string{`{"a":1} junk`, `{"a":1}{"b":2}`, `{"a":1} 3`} {
		_, err := criteria.ParseString(in)
		require.ErrorIs(t, err, criteria.ErrInvalid, in)
	}
	c, err := criteria.ParseString("{\"a\":1}\n  ")
	require.NoError(t, err)
	assert.Equal(t, criteria.Criteria{"a": int64(1)}, c)
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int(3), int64(3)},
		{int8(-3), int64(-3)},
		{uint16(7), int64(7)},
		{uint64(9), int64(9)},
		{float32(1.5), float64(1.5)},
		{true, int64(1)},
		{false, int64(0)},
		{"s", "s"},
		{nil, nil},
	}
	for _, tc := range tests {
		got, ok := criteria.Canonical(tc.in)
		require.True(t, ok, "%T", tc.in)
		assert.Equal(t, tc.want, got, "%T", tc.in)
	}

	for _, bad := range []any{uint64(1 << 63), struct{}{}, map[string]any{}, []int{1}} {
		_, ok := criteria.Canonical(bad)
		assert.False(t, ok, "%T", bad)
	}
}

func TestCompileCanonicalizesValues(t *testing.T) {
	cond, err := criteria.Compile(criteria.Criteria{
		"a": true,
		"b": criteria.In(int32(1), uint8(2)),
		"c": criteria.Between(float32(0.5), 2),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(1), int64(2), float64(0.5), int64(2)}, cond.Args)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"name"`, criteria.Quote("name"))
	assert.Equal(t, `"a""b"`, criteria.Quote(`a"b`))
	assert.True(t, criteria.ValidIdent("_a1"))
	assert.False(t, criteria.ValidIdent("1a"))
	assert.False(t, criteria.ValidIdent(""))
}

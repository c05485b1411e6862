package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  string
		expect string
		ok     bool
	}{
		{name: "empty", query: "", ok: false},
		{name: "whitespace", query: "   \t\n", ok: false},
		{name: "only punctuation", query: `"*():^-`, ok: false},
		{name: "single token", query: "west", expect: `"west"*`, ok: true},
		{name: "case folded", query: "WestWorld", expect: `"westworld"*`, ok: true},
		{name: "multi word is AND", query: "the wire", expect: `"the"* AND "wire"*`, ok: true},
		{name: "phrase", query: `"the wire"`, expect: `"the wire"`, ok: true},
		{name: "phrase with padding", query: `  "The  Wire" `, expect: `"the wire"`, ok: true},
		{name: "operators are plain text", query: "NOT OR AND", expect: `"not"* AND "or"* AND "and"*`, ok: true},
		{name: "quotes inside are dropped", query: `say "hi`, expect: `"say"* AND "hi"*`, ok: true},
		{name: "unicode", query: "Amélie 2001", expect: `"amélie"* AND "2001"*`, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expr, ok := BuildMatch(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expect, expr)
		})
	}
}

func TestIsPhrase(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPhrase(`"a b"`))
	assert.False(t, IsPhrase(`"`))
	assert.False(t, IsPhrase(`a "b"`))
	assert.False(t, IsPhrase(`a b`))
}

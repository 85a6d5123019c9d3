package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDirective(t *testing.T) {
	d, ok := findDirective("x @if ($a) y", "if", 0, argsRequired)
	require.True(t, ok)
	assert.Equal(t, 2, d.start)
	assert.Equal(t, 10, d.end)
	assert.Equal(t, "$a", d.args)
	assert.True(t, d.hasArgs)

	d, ok = findDirective("yes@endif", "endif", 0, argsNone)
	require.True(t, ok, "closer glued to a word")
	assert.Equal(t, 3, d.start)

	_, ok = findDirective("x@break", "break", 0, argsOptional)
	assert.False(t, ok, "standalone directive glued to a word")

	d, ok = findDirective("x @break", "break", 0, argsOptional)
	require.True(t, ok)
	assert.Equal(t, 2, d.start)

	_, ok = findDirective("@foreach($a as $b)", "for", 0, argsRequired)
	assert.False(t, ok, "longer directive name")

	d, ok = findDirective("@if(fn(')'), \"(\")", "if", 0, argsRequired)
	require.True(t, ok)
	assert.Equal(t, `fn(')'), "("`, d.args)

	d, ok = findDirective("@break;", "break", 0, argsOptional)
	require.True(t, ok)
	assert.False(t, d.hasArgs)
	assert.Equal(t, 6, d.end)
}

func TestReplaceDirectiveDeclined(t *testing.T) {
	in := "@json($a) @json($b, 'pretty')"
	out := replaceDirective(in, "json", argsRequired, func(d directive) (string, bool) {
		if len(splitArgs(d.args)) != 2 {
			return "", false
		}
		return "P", true
	})
	assert.Equal(t, "@json($a) P", out)
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"$a", "fn(1, 2)", "'x,y'", "[1, 2]"}, splitArgs("$a, fn(1, 2), 'x,y', [1, 2]"))
	assert.Equal(t, []string{""}, splitArgs(""))
}

func TestUnquoteAndBindingName(t *testing.T) {
	assert.Equal(t, "a", unquote(` "a" `))
	assert.Equal(t, "a'", unquote(`a'`))
	assert.Equal(t, "page_title", bindingName(`'page title'`))
	assert.Equal(t, "title", bindingName(`$title`))
	assert.Equal(t, "", bindingName(`""`))
}

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleDollar(t *testing.T) {
	p := NewParser("$name")
	e, err := p.Parse()
	require.NoError(t, err)
	assert.True(t, IsSimpleDollarVariable(e), "expected simple dollar variable, got %#v", e)
}

func TestParseDotAccess(t *testing.T) {
	p := NewParser("$user.Name")
	e, err := p.Parse()
	require.NoError(t, err)
	assert.True(t, IsSimpleDollarVariable(e), "expected simple dollar variable chain, got %#v", e)
}

func TestParseIndexAccess(t *testing.T) {
	p := NewParser("$m[\"key\"]")
	e, err := p.Parse()
	require.NoError(t, err)
	assert.True(t, IsSimpleDollarVariable(e), "expected simple dollar index access, got %#v", e)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"root lookup", "$name", "$.name"},
		{"field chain", "$user.Name", "$.user.Name"},
		{"arrow access", "$user->name", "$.user.name"},
		{"quoted index", `$m["key"]`, `(index $.m "key")`},
		{"single quoted index", `$m['key']`, `(index $.m "key")`},
		{"index then field", "$user.Profile[0].Name", "(index $.user.Profile 0).Name"},
		{"comparison", "$count > 1", "gt $.count 1"},
		{"strict equality", "$a === 'x'", `eq $.a "x"`},
		{"boolean", "$a == 'x' && !$b", `and (eq $.a "x") (not $.b)`},
		{"or", "$a || $b", "or $.a $.b"},
		{"null coalescing", "$title ?? 'Untitled'", `or $.title "Untitled"`},
		{"call with parens", "count($items) > 0", "gt (count $.items) 0"},
		{"go style call", "upper $name", "upper $.name"},
		{"pipe", "$name | upper", "$.name | upper"},
		{"nested call", `printf "%s" (join "," $list)`, `printf "%s" (join "," $.list)`},
		{"method with args", `$fiber.Query("page")`, `$.fiber.Query "page"`},
		{"negative number", "$n >= -1", "ge $.n -1"},
		{"bare root", "$", "$"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Translate(tc.in, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTranslateLocals(t *testing.T) {
	scope := Locals{}
	scope.Add("item")

	got, err := Translate("$item.name == $selected", scope)
	require.NoError(t, err)
	assert.Equal(t, "eq $item.name $.selected", got)
}

func TestTranslateOperandParenthesizes(t *testing.T) {
	got, err := TranslateOperand("$a > 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "(gt $.a 1)", got)

	got, err = TranslateOperand("$a", nil)
	require.NoError(t, err)
	assert.Equal(t, "$.a", got)
}

func TestTranslateRejectsTrailingTokens(t *testing.T) {
	for _, in := range []string{"$a +", "$a = 1", "($a", `$m[`} {
		_, err := Translate(in, nil)
		assert.Error(t, err, in)
	}
}

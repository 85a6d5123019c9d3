package engine

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDirectives(t *testing.T) {
	c := NewCompiler()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"escaped echo", `Hello {{ $name }}`, `Hello {% escape $.name %}`},
		{"escaped expression", `{{ $a > 1 }}`, `{% escape (gt $.a 1) %}`},
		{"raw echo", `{!! $html !!}`, `{% raw $.html %}`},
		{"generic echo", `{{ count($items) }}`, `{% echo (count $.items) %}`},
		{"literal echo", `{{ "hi" }}`, `{% echo "hi" %}`},
		{"empty echo", `a{{ }}b`, `ab`},
		{"blade comment", `a{{-- @if($x) --}}b`, `ab`},
		{"html comment", `a<!-- {{ $x }} -->b`, `ab`},
		{
			"if chain",
			`@if($a) A @elseif($b) B @else C @endif`,
			`{% if $.a %} A {% else if $.b %} B {% else %} C {% end %}`,
		},
		{"else if spelled apart", `@if($a) A @else if($b) B @endif`, `{% if $.a %} A {% else if $.b %} B {% end %}`},
		{"unless", `@unless($flag) off @endunless`, `{% if not $.flag %} off {% end %}`},
		{"boolean condition", `@if($a == 'x' && !$b) y @endif`, `{% if and (eq $.a "x") (not $.b) %} y {% end %}`},
		{"foreach key value", `@foreach($m as $k => $v)|@endforeach`, `{% range $k, $v := $.m %}|{% end %}`},
		{"for over slice", `@for($list)|@endfor`, `{% range $.list %}|{% end %}`},
		{"for go style", `@for($i, $v := $list)|@endfor`, `{% range $i, $v := $.list %}|{% end %}`},
		{"counting up", `@for($i = 0; $i < 3; $i++)|@endfor`, `{% range $i := iterate 0 "<" 3 1 %}|{% end %}`},
		{"counting down", `@for($i = 3; $i >= 1; $i--)|@endfor`, `{% range $i := iterate 3 ">=" 1 -1 %}|{% end %}`},
		{"counting by step", `@for($i = 0; $i <= $n; $i += 2)|@endfor`, `{% range $i := iterate 0 "<=" $.n 2 %}|{% end %}`},
		{"counting down by binding", `@for($i = 9; $i > 0; $i -= $s)|@endfor`, `{% range $i := iterate 9 ">" 0 (neg $.s) %}|{% end %}`},
		{"php block", `@php $x := 1 @endphp`, `{% $x := 1 %}`},
		{"json", `@json($data)`, `{% json $.data %}`},
		{"json pretty", `@json($data, 'pretty')`, `{% json_pretty $.data %}`},
		{"includes", `@includes('partials.nav')`, `{% includes "partials.nav" $ %}`},
		{"include alias", `@include("partials.nav")`, `{% includes "partials.nav" $ %}`},
		{"print", `@print('title')`, `{% required "title" $ %}`},
		{"print with blanks", `@print('page title')`, `{% required "page_title" $ %}`},
		{"print empty", `a @print('') b`, `a  b`},
		{"csrf", `@csrf`, `{% csrf_field "csrf-token" %}`},
		{"csrf field", `@csrf("_token")`, `{% csrf_field "_token" %}`},
		{"markdown", `@markdown($body)`, `{% markdown $.body %}`},
		{"break", `@break`, `{% break %}`},
		{"continue when", `@continue($a > 2)`, `{% if gt $.a 2 %}{% continue %}{% end %}`},
		{"varname", `@varname(greeting, 'hi')`, `{% $greeting = "hi" %}`},
		{"varname invalid name", `@varname(Greeting, 'hi')`, `@varname(Greeting, 'hi')`},
		{"plain text", `no directives here`, `no directives here`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Build(tc.in)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Build(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestBuildDirectiveBoundaries(t *testing.T) {
	c := NewCompiler()

	// Mail addresses and doubled markers are text.
	assert.Equal(t, "mail me at john@if.com", c.Build("mail me at john@if.com"))
	assert.Equal(t, "@@if($a)", c.Build("@@if($a)"))

	// Standalone directives glued to a word are text.
	assert.Equal(t, "x@break y@continue", c.Build("x@break y@continue"))

	// A longer directive name never matches a shorter one.
	assert.Equal(t, "@iffy", c.Build("@iffy"))

	// Unbalanced arguments leave the directive untouched.
	assert.Equal(t, "@if($a x", c.Build("@if($a x"))

	// Parentheses inside quotes do not close the argument list.
	assert.Equal(t, `{% json "a)b" %}`, c.Build(`@json("a)b")`))
}

func TestBuildClosersGluedToText(t *testing.T) {
	c := NewCompiler()

	cases := []struct {
		in   string
		want string
	}{
		{`@if($a)yes@endif`, `{% if $.a %}yes{% end %}`},
		{`@if($a)yes@else no@endif`, `{% if $.a %}yes{% else %} no{% end %}`},
		{`@unless($a)no@endunless`, `{% if not $.a %}no{% end %}`},
		{`@foreach($xs as $x)item@endforeach`, `{% range $x := $.xs %}item{% end %}`},
		{`@for($i = 0; $i < 2; $i++)i@endfor`, `{% range $i := iterate 0 "<" 2 1 %}i{% end %}`},
		{`@php $.a@endphp`, `{% $.a%}`},
		{`<b>Total@json($a)</b>`, `<b>Total{% json $.a %}</b>`},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, c.Build(tc.in)); diff != "" {
			t.Errorf("Build(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	c := NewCompiler()

	src := `@base('layouts.main')
{{-- page --}}
@section('title')Orders@endsection
@section('content')
@varname(total, count($orders))
<p>{{ $total }} orders for {!! $user->name !!}</p>
@foreach($orders as $i => $order)
  @if($order.paid)<li>{{ $i }}: @json($order)</li>@else<li>unpaid</li>@endif
@endforeach
@csrf
@endsection`

	first := c.Compile(src)
	second := c.Compile(src)
	assert.Equal(t, first, second)
	assert.Equal(t, first, NewCompiler().Compile(src))
	assert.Contains(t, first, `Orders{% end %}{% section "section:0:title" "title" $ %}`)
	assert.NotContains(t, first, "@endsection")
}

func TestBuildLoopsUseLocals(t *testing.T) {
	c := NewCompiler()

	got := c.Build(`@foreach($items as $item)<li>{{ $item.name }}</li>@endforeach`)
	assert.Equal(t, `{% range $item := $.items %}<li>{% escape $item.name %}</li>{% end %}`, got)

	got = c.Build(`@foreach($xs as $x)@break($x == 2){{ $x }}@endforeach`)
	assert.Equal(t, `{% range $x := $.xs %}{% if eq $x 2 %}{% break %}{% end %}{% escape $x %}{% end %}`, got)
}

func TestCompileDeclaresLocals(t *testing.T) {
	c := NewCompiler()

	got := c.Compile(`@foreach($xs as $x){{ $x }}@endforeach`)
	assert.Equal(t, `{% $x := $.x %}{% range $x := $.xs %}{% escape $x %}{% end %}`, got)

	got = c.Compile(`@varname(greeting, 'hi'){{ $greeting }}`)
	assert.Equal(t, `{% $greeting := $.greeting %}{% $greeting = "hi" %}{% escape $greeting %}`, got)
}

func TestCompileDeclaresLocalsInSections(t *testing.T) {
	c := NewCompiler()

	got := c.Compile("@section('list')\n@foreach($xs as $x){{ $x }}@endforeach\n@endsection")
	want := `{% $x := $.x %}{% define "section:0:list" %}{% $x := $.x %}{% range $x := $.xs %}{% escape $x %}{% end %}{% end %}` +
		`{% section "section:0:list" "list" $ %}`
	assert.Equal(t, want, got)
}

func TestCompileCustomCSRFField(t *testing.T) {
	c := NewCompilerWithOptions(CompilerOptions{CSRFField: "_token"})
	assert.Equal(t, `{% csrf_field "_token" %}`, c.Compile("@csrf"))
}

func TestCompileCollapseWhitespace(t *testing.T) {
	c := NewCompilerWithOptions(CompilerOptions{CollapseWhitespace: true})
	got := c.Compile("<ul>\n\n\n    <li>{{ $a }}</li>\n\n</ul>")
	assert.Equal(t, "<ul>\n<li>{% escape $.a %}</li>\n</ul>", got)
}

func TestTraceReportsEveryStage(t *testing.T) {
	c := NewCompiler()

	var stages []string
	out := c.Trace(`@if($a){{ $b }}@endif`, func(stage, _ string) {
		stages = append(stages, stage)
	})

	want := []string{"source", "sections"}
	for _, p := range c.passes() {
		want = append(want, p.name)
	}
	want = append(want, "artifact")
	if diff := cmp.Diff(want, stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, c.Compile(`@if($a){{ $b }}@endif`), out)
}

func TestRunPassRecovers(t *testing.T) {
	c := NewCompiler()
	u := c.newUnit("")

	boom := pass{"boom", func(*unit, string) string { panic("boom") }}
	assert.Equal(t, "unchanged", c.runPass(u, boom, "unchanged"))
}

func TestCompiledArtifactsParse(t *testing.T) {
	c := NewCompiler()
	stubs := (&renderer{}).funcMap()

	sources := []string{
		`@if($a) A @elseif($b) B @else C @endif`,
		`@foreach($items as $i => $item){{ $i }}{{ $item->name }}@endforeach`,
		`@for($i = 0; $i < $n; $i++)@continue($i == 1){{ $i }}@endfor`,
		`@json($data, 'pretty') @json($data) @csrf @markdown($md)`,
		`@section('title') T @endsection @print('title')`,
		`@varname(total, count($items)) {{ $total }}`,
	}
	for _, src := range sources {
		artifact := c.Compile(src)
		_, err := parseArtifact("t", artifact, stubs)
		require.NoError(t, err, "source %q compiled to %q", src, artifact)
	}
}

func TestCompileLeavesGoTemplateSyntaxAlone(t *testing.T) {
	c := NewCompiler()

	// {% %} is not a directive delimiter for the passes.
	in := `{% range $.items %}{% . %}{% end %}`
	got := c.Compile(in)
	assert.True(t, strings.Contains(got, in), "got %q", got)
}

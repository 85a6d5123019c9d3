package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// SectionTemplate is the name of the template holding the nth section body.
func SectionTemplate(n int, name string) string {
	return fmt.Sprintf("section:%d:%s", n, name)
}

// ResolveDirective lifts @section blocks to the front of the view and turns
// @base into an include of the parent appended at the end. The parent then
// reads each section body from the context under the section's name.
func (c *Compiler) ResolveDirective(source string) string {
	return c.resolveDirective(c.newUnit(source), source)
}

func (c *Compiler) resolveDirective(u *unit, content string) string {
	var bases []string
	content = replaceDirective(content, "base", argsRequired, func(d directive) (string, bool) {
		if strings.TrimSpace(d.args) == "" {
			return "", false
		}
		bases = append(bases, "{% includes "+u.operand(d.args)+" $ %}")
		return "", true
	})

	var (
		sections []string
		body     strings.Builder
		pos      int
	)
	for {
		d, ok := findDirective(content, "section", pos, argsRequired)
		if !ok {
			break
		}
		if !d.hasArgs {
			body.WriteString(content[pos:d.end])
			pos = d.end
			continue
		}
		end, ok := findDirective(content, "endsection", d.end, argsNone)
		if !ok {
			c.logger.Debug("section left open", "args", d.args)
			break
		}
		body.WriteString(content[pos:d.start])
		pos = end.end

		name := bindingName(d.args)
		if name == "" {
			c.logger.Debug("unnamed section discarded")
			continue
		}
		tmpl := strconv.Quote(SectionTemplate(len(sections), name))
		sections = append(sections, fmt.Sprintf("{%% define %s %%}%s{%% end %%}{%% section %s %s $ %%}",
			tmpl, strings.TrimSpace(content[d.end:end.start]), tmpl, strconv.Quote(name)))
	}
	body.WriteString(content[pos:])

	out := strings.Join(sections, "") + strings.TrimSpace(body.String())
	if len(bases) > 0 {
		out += "\n\n" + strings.Join(bases, "\n")
	}
	return out
}

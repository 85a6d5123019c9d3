package engine

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MarkdownRenderer converts Markdown to HTML for @markdown.
type MarkdownRenderer interface {
	RenderMarkdown(src string) (string, error)
}

// GoldmarkRenderer renders GitHub flavored Markdown with goldmark.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

func NewGoldmarkRenderer(opts ...goldmark.Option) *GoldmarkRenderer {
	opts = append([]goldmark.Option{goldmark.WithExtensions(extension.GFM)}, opts...)
	return &GoldmarkRenderer{md: goldmark.New(opts...)}
}

func (g *GoldmarkRenderer) RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

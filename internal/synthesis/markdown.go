package synthesis

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const defaultMinBodyChars = 200

// ErrMalformedBody marks a model reply that is not a usable markdown document.
var ErrMalformedBody = errors.New("malformed document body")

var htmlBlockPattern = regexp.MustCompile(`(?i)^\s*<(!doctype|html|body|article|section|div|h[1-6]|p|ul|ol|table)[\s>]`)

// Normalizer converts raw model output into validated markdown.
type Normalizer struct {
	converter    *converter.Converter
	markdown     goldmark.Markdown
	minBodyChars int
}

// NewNormalizer builds a Normalizer rejecting bodies with fewer than
// minBodyChars characters of visible text.
func NewNormalizer(minBodyChars int) *Normalizer {
	if minBodyChars <= 0 {
		minBodyChars = defaultMinBodyChars
	}
	return &Normalizer{
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		markdown:     goldmark.New(),
		minBodyChars: minBodyChars,
	}
}

// Normalize strips code fences, converts HTML-shaped replies to markdown, and
// validates the result. It returns the body and the text of its first
// heading, if any.
func (n *Normalizer) Normalize(raw string) (string, string, error) {
	body := strings.TrimSpace(stripFence(raw))
	if body == "" {
		return "", "", fmt.Errorf("%w: empty body", ErrMalformedBody)
	}
	if htmlBlockPattern.MatchString(body) {
		converted, err := n.converter.ConvertString(body)
		if err != nil {
			return "", "", fmt.Errorf("%w: convert html: %v", ErrMalformedBody, err)
		}
		body = strings.TrimSpace(converted)
	}

	source := []byte(body)
	doc := n.markdown.Parser().Parse(text.NewReader(source))

	var headline string
	var visible int
	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := node.(type) {
		case *ast.Heading:
			if headline == "" {
				headline = strings.TrimSpace(nodeText(node, source))
			}
		case *ast.Text:
			visible += utf8.RuneCount(node.Segment.Value(source))
		case *ast.String:
			visible += utf8.RuneCount(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			visible += utf8.RuneCount(blockLines(node, source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if visible < n.minBodyChars {
		return "", "", fmt.Errorf("%w: %d visible characters, need %d", ErrMalformedBody, visible, n.minBodyChars)
	}
	return body, headline, nil
}

func nodeText(node ast.Node, source []byte) string {
	var b strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child := child.(type) {
		case *ast.Text:
			b.Write(child.Segment.Value(source))
			if child.SoftLineBreak() || child.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(child.Value)
		default:
			b.WriteString(nodeText(child, source))
		}
	}
	return b.String()
}

func blockLines(node ast.Node, source []byte) []byte {
	var out []byte
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(source)...)
	}
	return out
}

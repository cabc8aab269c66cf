package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

func parseMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return normalizeMarkdown([]byte(normalizeNewlines(string(data)))), nil
}

// normalizeMarkdown re-renders markdown from its GFM syntax tree so that
// headings, tables and lists come out in one canonical form.
func normalizeMarkdown(source []byte) string {
	doc := markdownParser.Parser().Parse(text.NewReader(source))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if b := renderBlock(n, source, ""); strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func renderBlock(n ast.Node, source []byte, indent string) string {
	switch node := n.(type) {
	case *ast.Heading:
		return strings.Repeat("#", node.Level) + " " + inlineText(node, source)
	case *ast.Paragraph, *ast.TextBlock:
		return indent + inlineText(node, source)
	case *ast.ThematicBreak:
		return "***"
	case *ast.FencedCodeBlock:
		lang := string(node.Language(source))
		return "```" + lang + "\n" + blockLines(node, source) + "```"
	case *ast.CodeBlock:
		return "```\n" + blockLines(node, source) + "```"
	case *ast.Blockquote:
		var lines []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			for _, l := range strings.Split(renderBlock(c, source, ""), "\n") {
				lines = append(lines, "> "+l)
			}
		}
		return strings.Join(lines, "\n")
	case *ast.List:
		return renderList(node, source, indent)
	case *east.Table:
		return renderTable(node, source)
	case *ast.HTMLBlock:
		return strings.TrimRight(blockLines(node, source), "\n")
	default:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if b := renderBlock(c, source, indent); b != "" {
				parts = append(parts, b)
			}
		}
		return strings.Join(parts, "\n\n")
	}
}

func renderList(list *ast.List, source []byte, indent string) string {
	var lines []string
	num := list.Start
	if num == 0 {
		num = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				lines = append(lines, renderList(sub, source, indent+"  "))
				continue
			}
			body := renderBlock(c, source, "")
			if first {
				lines = append(lines, indent+marker+body)
				first = false
			} else {
				lines = append(lines, indent+"  "+body)
			}
		}
		if first {
			lines = append(lines, indent+strings.TrimSpace(marker))
		}
	}
	return strings.Join(lines, "\n")
}

func renderTable(table *east.Table, source []byte) string {
	var rows [][]string
	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, inlineText(c, source))
		}
		rows = append(rows, cells)
	}
	var sb strings.Builder
	writeTable(&sb, rows)
	return strings.TrimRight(sb.String(), "\n")
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

// inlineText flattens inline children back to markdown-ish text.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.CodeSpan:
			sb.WriteString("`" + inlineText(node, source) + "`")
		case *ast.Emphasis:
			mark := strings.Repeat("*", node.Level)
			sb.WriteString(mark + inlineText(node, source) + mark)
		case *ast.Link:
			sb.WriteString("[" + inlineText(node, source) + "](" + string(node.Destination) + ")")
		case *ast.Image:
			sb.WriteString("![" + inlineText(node, source) + "](" + string(node.Destination) + ")")
		case *ast.AutoLink:
			sb.Write(node.URL(source))
		case *ast.RawHTML:
			segs := node.Segments
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				sb.Write(seg.Value(source))
			}
		default:
			sb.WriteString(inlineText(c, source))
		}
	}
	return strings.TrimSpace(sb.String())
}

package importers

import (
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	numberPrefixRe = regexp.MustCompile(`^\d+[-_]`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Page is a markdown file reduced to a document.
type Page struct {
	Title   string
	Content string
}

// ParseMarkdown extracts the title and plain text of a markdown file. The
// title is the first heading, or fallbackTitle when there is none.
func ParseMarkdown(src []byte, fallbackTitle string) Page {
	doc := markdown.Parser().Parse(text.NewReader(src))

	page := Page{Title: fallbackTitle}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			if t := strings.TrimSpace(inlineText(h, src)); t != "" {
				page.Title = t
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})

	page.Content = plainText(doc, src)
	return page
}

// TitleFromPath derives a title from a file name: "0003-expense_policy.md"
// becomes "expense policy".
func TitleFromPath(p string) string {
	base := path.Base(p)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = numberPrefixRe.ReplaceAllString(base, "")
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func plainText(doc ast.Node, src []byte) string {
	var b strings.Builder
	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, cell := n.(*extast.TableCell); cell {
				return ast.WalkContinue, nil
			}
			if n.Type() == ast.TypeBlock {
				newline()
				switch n.(type) {
				case *ast.Paragraph, *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock:
					b.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			newline()
			b.WriteString("- ")
		case *extast.TableCell:
			if n.PreviousSibling() != nil {
				b.WriteString(" | ")
			}
		}
		return ast.WalkContinue, nil
	})

	out := blankLinesRe.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

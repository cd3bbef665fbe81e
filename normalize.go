package ason

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// preludeImports are modules the runner prelude already provides;
// duplicate import lines for them are dropped during normalization.
var preludeImports = map[string]bool{
	"json":      true,
	"sys":       true,
	"threading": true,
	"textwrap":  true,
	"traceback": true,
	"uuid":      true,
}

// NormalizeScript turns a raw script-agent reply into an executable
// script body: the first fenced code block is extracted when present
// (the whole reply otherwise), comments are stripped, import lines
// already satisfied by the prelude are dropped, and runs of blank
// lines collapse.
func NormalizeScript(reply string) string {
	body := extractFencedCode(reply)
	if body == "" {
		body = reply
	}

	var out []string
	blanks := 0
	for line := range strings.Lines(body) {
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			blanks++
			if blanks > 1 {
				continue
			}
			out = append(out, "")
			continue
		case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "//"):
			continue
		case isPreludeImport(trimmed):
			continue
		}
		blanks = 0
		out = append(out, strings.TrimSuffix(stripTrailingComment(line), " "))
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// extractFencedCode returns the content of the first fenced code block
// in the reply, located through the goldmark AST so indented and
// info-tagged fences are all handled.
func extractFencedCode(reply string) string {
	source := []byte(reply)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var code string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || code != "" {
			return ast.WalkContinue, nil
		}
		if block, ok := n.(*ast.FencedCodeBlock); ok {
			var b strings.Builder
			for i := 0; i < block.Lines().Len(); i++ {
				seg := block.Lines().At(i)
				b.Write(seg.Value(source))
			}
			code = b.String()
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return code
}

// isPreludeImport reports whether the line imports a module the prelude
// already loaded.
func isPreludeImport(line string) bool {
	rest, ok := strings.CutPrefix(line, "import ")
	if !ok {
		if rest, ok = strings.CutPrefix(line, "from "); !ok {
			return false
		}
		rest, _, _ = strings.Cut(rest, " ")
		return preludeImports[strings.TrimSpace(rest)]
	}
	for mod := range strings.SplitSeq(rest, ",") {
		mod = strings.TrimSpace(mod)
		mod, _, _ = strings.Cut(mod, " as ")
		if !preludeImports[strings.TrimSpace(mod)] {
			return false
		}
	}
	return true
}

// stripTrailingComment removes a trailing "  # ..." comment. Only
// comments preceded by whitespace are stripped, and never inside a
// string literal.
func stripTrailingComment(line string) string {
	inSingle, inDouble := false, false
	for i, r := range line {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble && i > 0 && (line[i-1] == ' ' || line[i-1] == '\t') {
				return strings.TrimRight(line[:i], " \t")
			}
		}
	}
	return line
}

// Package redact masks secret values in source lines before they leave the
// editor as model context. Only values are masked; names, structure and
// variable references are kept so the context stays useful.
package redact

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Mask replaces every redacted value.
const Mask = "***"

// shellLanguages are language identifiers whose lines are parsed as shell.
var shellLanguages = map[string]bool{
	"shellscript": true, "sh": true, "bash": true, "zsh": true,
	"dotenv": true, "env": true,
}

// sensitiveWords mark an assignment target as holding a secret.
var sensitiveWords = []string{
	"KEY", "TOKEN", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL", "AUTH",
}

// IsShell reports whether languageID is parsed as shell.
func IsShell(languageID string) bool {
	return shellLanguages[strings.ToLower(languageID)]
}

// Lines redacts each line for the given language. The input is not modified.
func Lines(languageID string, lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Line(languageID, line)
	}
	return out
}

// Line redacts secret values in a single line. Lines without secrets are
// returned unchanged, byte for byte.
func Line(languageID, line string) string {
	if strings.TrimSpace(line) == "" {
		return line
	}
	if IsShell(languageID) {
		return Shell(line)
	}
	return quotedRedact(line)
}

// Shell masks values assigned to sensitive names in a shell line, e.g.
// `export API_KEY=abc` becomes `export API_KEY=***`.
func Shell(line string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return assignRedact(line)
	}

	changed := false
	syntax.Walk(prog, func(node syntax.Node) bool {
		if n, ok := node.(*syntax.Assign); ok {
			if n.Name != nil && n.Value != nil && isSensitive(n.Name.Value) && !isMasked(n.Value) {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: Mask}}
				changed = true
			}
		}
		return true
	})
	if !changed {
		return line
	}

	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return assignRedact(line)
	}
	return leadingSpace(line) + strings.TrimRight(buf.String(), "\n")
}

func isMasked(w *syntax.Word) bool {
	if len(w.Parts) != 1 {
		return false
	}
	lit, ok := w.Parts[0].(*syntax.Lit)
	return ok && lit.Value == Mask
}

func isSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, word := range sensitiveWords {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

var (
	reAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
	// name, separator, opening quote, value, closing quote
	reQuoted = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*)(["']?\s*(?::=|[:=])\s*)(["'` + "`" + `])([^"'` + "`" + `]+)(["'` + "`" + `])`)
)

// assignRedact is the fallback for shell lines that fail to parse.
func assignRedact(line string) string {
	return reAssign.ReplaceAllStringFunc(line, func(m string) string {
		parts := reAssign.FindStringSubmatch(m)
		if !isSensitive(parts[1]) {
			return m
		}
		return parts[1] + "=" + Mask
	})
}

// quotedRedact masks quoted literals assigned to sensitive names in
// non-shell code: `apiKey = "abc"`, `"token": "abc"`, `secret := "abc"`.
func quotedRedact(line string) string {
	return reQuoted.ReplaceAllStringFunc(line, func(m string) string {
		parts := reQuoted.FindStringSubmatch(m)
		if !isSensitive(parts[1]) || parts[4] == Mask {
			return m
		}
		return parts[1] + parts[2] + parts[3] + Mask + parts[5]
	})
}

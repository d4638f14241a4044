// Package expression parses command-line-like invocation strings into
// expressions (positional arguments plus keyed options) and resolves the
// "${...}" placeholders they carry.
//
// A string source is tokenized shell-style:
//
//	deploy 'my site' --stage=prod --no-cache -fv, notify "done ${arguments[0]}"
//
// Quoted segments stay single tokens, a trailing comma ends an expression,
// "--x=v", "--x v", "--no-x", "--non-x" and "-abc" become options.
package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
)

// Expression is one invocation unit.
type Expression struct {
	// Arguments are positional arguments. Elements are raw values or
	// *Template when they contain placeholders.
	Arguments []any

	// Options are keyed arguments in declaration order. Values follow the
	// same rule as Arguments.
	Options *value.OrderedMap

	// Dir is the working directory the expression was parsed relative to.
	Dir string
}

// Template is a string with unresolved placeholders.
type Template struct {
	Parts []Part
}

// Part is a literal text run or a placeholder source.
type Part struct {
	Text  string
	IsVar bool
}

// String renders the template back into its source form.
func (t *Template) String() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.IsVar {
			b.WriteString("${")
			b.WriteString(p.Text)
			b.WriteString("}")
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// token is a lexed word before option conversion.
type token struct {
	parts []Part
	// quoted is true when the word starts inside quotes, which prevents it
	// from being read as an option.
	quoted bool
	// comma is true when an unquoted comma ended the word.
	comma bool
}

func (t token) literal() (string, bool) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.IsVar {
			return "", false
		}
		b.WriteString(p.Text)
	}
	return b.String(), true
}

// Parse parses an expression source: a string, or a list of tokens.
// Comma-chained sources produce one expression per link.
func Parse(src any, dir string) ([]*Expression, error) {
	var tokens []token
	switch s := src.(type) {
	case string:
		var err error
		tokens, err = tokenize(s)
		if err != nil {
			return nil, err
		}
	case []string:
		for _, e := range s {
			tok, err := wordToken(e)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	case []any:
		var out []*Expression
		cur := &Expression{Options: value.NewOrderedMap(), Dir: dir}
		var words []token
		flush := func() error {
			if err := convert(words, cur); err != nil {
				return err
			}
			if len(cur.Arguments) > 0 || cur.Options.Len() > 0 {
				out = append(out, cur)
			}
			cur = &Expression{Options: value.NewOrderedMap(), Dir: dir}
			words = nil
			return nil
		}
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				if err := convert(words, cur); err != nil {
					return nil, err
				}
				words = nil
				cur.Arguments = append(cur.Arguments, value.Clone(e))
				continue
			}
			tok, err := wordToken(str)
			if err != nil {
				return nil, err
			}
			words = append(words, tok)
		}
		if err := flush(); err != nil {
			return nil, err
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, errs.New(errs.CodeDefinition, "expression must be a string or a list, got %T", src)
	}

	var out []*Expression
	var group []token
	for _, tok := range tokens {
		if len(tok.parts) > 0 {
			group = append(group, tok)
		}
		if tok.comma {
			expr, err := build(group, dir)
			if err != nil {
				return nil, err
			}
			if expr != nil {
				out = append(out, expr)
			}
			group = nil
		}
	}
	expr, err := build(group, dir)
	if err != nil {
		return nil, err
	}
	if expr != nil {
		out = append(out, expr)
	}
	return out, nil
}

func build(group []token, dir string) (*Expression, error) {
	if len(group) == 0 {
		return nil, nil
	}
	expr := &Expression{Options: value.NewOrderedMap(), Dir: dir}
	if err := convert(group, expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// wordToken makes a token from an element of a token list. Elements are
// taken verbatim except for placeholders.
func wordToken(s string) (token, error) {
	parts, err := splitPlaceholders(s)
	if err != nil {
		return token{}, err
	}
	return token{parts: parts}, nil
}

// tokenize splits a source string into words. A comma ending a word, or
// standing alone, ends the expression; a comma inside a word is literal.
func tokenize(src string) ([]token, error) {
	var (
		tokens []token
		cur    token
		text   strings.Builder
		inWord bool
	)

	flushText := func() {
		if text.Len() > 0 {
			cur.parts = append(cur.parts, Part{Text: text.String()})
			text.Reset()
		}
	}
	endWord := func(comma bool) {
		flushText()
		if inWord && len(cur.parts) == 0 {
			cur.parts = []Part{{Text: ""}}
		}
		if inWord || comma {
			cur.comma = comma
			tokens = append(tokens, cur)
		}
		cur = token{}
		inWord = false
	}

	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case isSpace(c):
			if inWord {
				endWord(false)
			}
		case c == ',' && (i+1 == len(runes) || isSpace(runes[i+1])):
			endWord(true)
		case c == '\\':
			if i+1 < len(runes) {
				i++
				text.WriteRune(runes[i])
			}
			inWord = true
		case c == '\'':
			if !inWord {
				cur.quoted = true
			}
			inWord = true
			end := indexRune(runes, i+1, '\'')
			if end < 0 {
				return nil, errs.New(errs.CodeParse, "unterminated quote in %q", src)
			}
			text.WriteString(string(runes[i+1 : end]))
			i = end
		case c == '"':
			if !inWord {
				cur.quoted = true
			}
			inWord = true
			j := i + 1
			closed := false
			for ; j < len(runes); j++ {
				d := runes[j]
				if d == '"' {
					closed = true
					break
				}
				if d == '\\' && j+1 < len(runes) {
					j++
					text.WriteRune(unescape(runes[j]))
					continue
				}
				if d == '$' && j+1 < len(runes) && runes[j+1] == '{' {
					end, err := placeholderEnd(runes, j+2)
					if err != nil {
						return nil, err
					}
					flushText()
					cur.parts = append(cur.parts, Part{Text: strings.TrimSpace(string(runes[j+2 : end])), IsVar: true})
					j = end
					continue
				}
				text.WriteRune(d)
			}
			if !closed {
				return nil, errs.New(errs.CodeParse, "unterminated quote in %q", src)
			}
			i = j
		case c == '$' && i+1 < len(runes) && runes[i+1] == '{':
			end, err := placeholderEnd(runes, i+2)
			if err != nil {
				return nil, err
			}
			flushText()
			cur.parts = append(cur.parts, Part{Text: strings.TrimSpace(string(runes[i+2 : end])), IsVar: true})
			inWord = true
			i = end
		default:
			text.WriteRune(c)
			inWord = true
		}
	}
	if inWord {
		endWord(false)
	}
	return tokens, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	}
	return r
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// placeholderEnd returns the index of the brace closing a placeholder whose
// body starts at from.
func placeholderEnd(runes []rune, from int) (int, error) {
	depth := 1
	for i := from; i < len(runes); i++ {
		switch runes[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errs.New(errs.CodeParse, "unterminated placeholder in %q", string(runes))
}

// splitPlaceholders splits s into text and placeholder parts.
func splitPlaceholders(s string) ([]Part, error) {
	runes := []rune(s)
	var parts []Part
	var text strings.Builder
	for i := 0; i < len(runes); i++ {
		if runes[i] == '$' && i+1 < len(runes) && runes[i+1] == '{' {
			end, err := placeholderEnd(runes, i+2)
			if err != nil {
				return nil, err
			}
			if text.Len() > 0 {
				parts = append(parts, Part{Text: text.String()})
				text.Reset()
			}
			parts = append(parts, Part{Text: strings.TrimSpace(string(runes[i+2 : end])), IsVar: true})
			i = end
			continue
		}
		text.WriteRune(runes[i])
	}
	if text.Len() > 0 || len(parts) == 0 {
		parts = append(parts, Part{Text: text.String()})
	}
	return parts, nil
}

// convert turns words into arguments and options of expr.
func convert(words []token, expr *Expression) error {
	for i := 0; i < len(words); i++ {
		w := words[i]
		if !looksLikeOption(w) {
			expr.Arguments = append(expr.Arguments, tokenValue(w.parts))
			continue
		}

		head := w.parts[0].Text
		if strings.HasPrefix(head, "--") {
			nameText, rest, hasValue := strings.Cut(head[2:], "=")
			if !hasValue && len(w.parts) > 1 {
				return errs.New(errs.CodeParse, "option name %q cannot contain placeholders", head)
			}
			if nameText == "" {
				return errs.New(errs.CodeParse, "empty option name in %q", head)
			}
			if hasValue {
				valueParts := w.parts[1:]
				if rest != "" {
					valueParts = append([]Part{{Text: rest}}, valueParts...)
				}
				expr.Options.Set(nameText, tokenValue(valueParts))
				continue
			}
			if name, ok := negated(nameText); ok {
				expr.Options.Set(name, false)
				continue
			}
			if i+1 < len(words) && !looksLikeOption(words[i+1]) {
				expr.Options.Set(nameText, tokenValue(words[i+1].parts))
				i++
				continue
			}
			expr.Options.Set(nameText, true)
			continue
		}

		// Single dash: cluster of one-character flags.
		if len(w.parts) > 1 {
			return errs.New(errs.CodeParse, "flag cluster %q cannot contain placeholders", head)
		}
		for _, r := range head[1:] {
			expr.Options.Set(string(r), true)
		}
	}
	return nil
}

func negated(name string) (string, bool) {
	for _, prefix := range []string{"no-", "non-"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return name[len(prefix):], true
		}
	}
	return "", false
}

// looksLikeOption reports whether a word is an option or a flag cluster.
// Quoted words and negative numbers are never options.
func looksLikeOption(w token) bool {
	if w.quoted || len(w.parts) == 0 || w.parts[0].IsVar {
		return false
	}
	head := w.parts[0].Text
	if len(head) < 2 || head[0] != '-' {
		return false
	}
	if lit, ok := w.literal(); ok {
		if lit == "--" {
			return false
		}
		if _, err := value.ParseNumber(lit); err == nil {
			return false
		}
	}
	return true
}

func tokenValue(parts []Part) any {
	if len(parts) == 1 && !parts[0].IsVar {
		return parts[0].Text
	}
	if len(parts) == 0 {
		return ""
	}
	return &Template{Parts: parts}
}

// Format renders an expression back into a single source string.
func (e *Expression) Format() string {
	var words []string
	for _, a := range e.Arguments {
		words = append(words, formatWord(a))
	}
	for _, k := range e.Options.Keys() {
		v, _ := e.Options.Get(k)
		switch t := v.(type) {
		case bool:
			if t {
				words = append(words, "--"+k)
			} else {
				words = append(words, "--no-"+k)
			}
		default:
			words = append(words, "--"+k+"="+formatWord(v))
		}
	}
	return strings.Join(words, " ")
}

func formatWord(v any) string {
	switch t := v.(type) {
	case *Template:
		return strconv.Quote(t.String())
	case string:
		if t == "" || strings.ContainsAny(t, " \t\n,'\"\\$") {
			return strconv.Quote(t)
		}
		return t
	}
	return fmt.Sprint(v)
}

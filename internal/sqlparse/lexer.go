package sqlparse

import (
	"fmt"
	"strings"
)

// Lex splits sql into tokens. Identifiers and keywords share one kind;
// the parser distinguishes them by text comparison.
func Lex(sql string) ([]Token, error) {
	var toks []Token
	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '\'':
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("sqlparse: unterminated string literal at position %d", start)
			}
			toks = append(toks, Token{Kind: KindString, Text: sb.String(), Pos: start})
		case isIdentStart(c):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			toks = append(toks, Token{Kind: KindIdent, Text: string(runes[start:i]), Pos: start})
		case c == '\\':
			// psql-style meta commands (\dt, \du, \l, \d) are lexed as a
			// single identifier-like token including the backslash.
			start := i
			i++
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			toks = append(toks, Token{Kind: KindIdent, Text: string(runes[start:i]), Pos: start})
		case c >= '0' && c <= '9':
			start := i
			for i < len(runes) && (runes[i] >= '0' && runes[i] <= '9' || runes[i] == '.') {
				i++
			}
			toks = append(toks, Token{Kind: KindNumber, Text: string(runes[start:i]), Pos: start})
		case c == '!' && i+1 < len(runes) && runes[i+1] == '=':
			toks = append(toks, Token{Kind: KindSymbol, Text: "!=", Pos: i})
			i += 2
		case strings.ContainsRune("(),.;=<>*-", c):
			toks = append(toks, Token{Kind: KindSymbol, Text: string(c), Pos: i})
			i++
		default:
			return nil, fmt.Errorf("sqlparse: unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, Token{Kind: KindEOF, Pos: len(runes)})
	return toks, nil
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

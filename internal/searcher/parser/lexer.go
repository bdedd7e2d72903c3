package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokColon
	tokPlus
	tokMinus
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokStar
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "word"
	case tokPhrase:
		return "phrase"
	case tokColon:
		return "':'"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokStar:
		return "'*'"
	default:
		return "unknown"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
	// escaped is set when the word contained a backslash escape, which
	// strips keyword meaning from it.
	escaped bool
}

func (t token) describe() string {
	switch t.kind {
	case tokWord:
		return fmt.Sprintf("%q", t.text)
	case tokPhrase:
		return fmt.Sprintf("phrase %q", t.text)
	default:
		return t.kind.String()
	}
}

func isSpecial(r rune) bool {
	switch r {
	case '(', ')', '[', ']', '{', '}', ':', '"':
		return true
	}
	return false
}

// lex splits query text into tokens. '+' and '-' are operators only at the
// start of a token, so "e-mail" stays one word.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		switch r {
		case '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: start})
			i += size
		case ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: start})
			i += size
		case '[':
			tokens = append(tokens, token{kind: tokLBracket, text: "[", pos: start})
			i += size
		case ']':
			tokens = append(tokens, token{kind: tokRBracket, text: "]", pos: start})
			i += size
		case '{':
			tokens = append(tokens, token{kind: tokLBrace, text: "{", pos: start})
			i += size
		case '}':
			tokens = append(tokens, token{kind: tokRBrace, text: "}", pos: start})
			i += size
		case ':':
			tokens = append(tokens, token{kind: tokColon, text: ":", pos: start})
			i += size
		case '+':
			tokens = append(tokens, token{kind: tokPlus, text: "+", pos: start})
			i += size
		case '-':
			tokens = append(tokens, token{kind: tokMinus, text: "-", pos: start})
			i += size
		case '"':
			text, next, err := lexPhrase(input, i+size)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokPhrase, text: text, pos: start})
			i = next
		default:
			text, escaped, next, err := lexWord(input, i)
			if err != nil {
				return nil, err
			}
			kind := tokWord
			if text == "*" && !escaped {
				kind = tokStar
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start, escaped: escaped})
			i = next
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func lexPhrase(input string, i int) (string, int, error) {
	var b strings.Builder
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch r {
		case '\\':
			if i+size >= len(input) {
				return "", 0, fmt.Errorf("dangling escape at offset %d", i)
			}
			next, nsize := utf8.DecodeRuneInString(input[i+size:])
			b.WriteRune(next)
			i += size + nsize
		case '"':
			return b.String(), i + size, nil
		default:
			b.WriteRune(r)
			i += size
		}
	}
	return "", 0, fmt.Errorf("unterminated phrase")
}

func lexWord(input string, i int) (string, bool, int, error) {
	var b strings.Builder
	escaped := false
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		if unicode.IsSpace(r) || isSpecial(r) {
			break
		}
		if r == '\\' {
			if i+size >= len(input) {
				return "", false, 0, fmt.Errorf("dangling escape at offset %d", i)
			}
			next, nsize := utf8.DecodeRuneInString(input[i+size:])
			b.WriteRune(next)
			escaped = true
			i += size + nsize
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String(), escaped, i, nil
}

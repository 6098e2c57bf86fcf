// Package dialect rewrites SQL text for engine-specific syntax. It is a
// best-effort translator for the small set of dialect-variable constructs
// (identifier quoting, boolean literals, limit clauses), not a full SQL
// compiler; text it cannot understand passes through unchanged.
package dialect

import "strings"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIllegal
	tokenIdent       // bare identifier or keyword
	tokenQuotedIdent // "name" or `name`, Literal holds the unquoted name
	tokenString      // 'text', Literal holds the raw quoted form
	tokenNumber
	tokenSymbol    // single punctuation character
	tokenParam     // ? or $N placeholder
	tokenSemicolon // ;
)

type token struct {
	Type    tokenType
	Literal string
	Quote   byte // quote character for tokenQuotedIdent
	Start   int  // byte offset of the token in the input
	End     int  // byte offset just past the token
}

// lexer tokenizes SQL input. It understands single-quoted strings with
// doubled-quote escaping, double-quoted and backtick-quoted identifiers,
// line and block comments, and numeric literals.
type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) next() token {
	l.skipWhitespaceAndComments()

	start := l.pos
	switch {
	case l.ch == 0:
		return token{Type: tokenEOF, Start: start, End: start}
	case l.ch == ';':
		l.readChar()
		return token{Type: tokenSemicolon, Literal: ";", Start: start, End: l.pos}
	case l.ch == '\'':
		return l.readString(start)
	case l.ch == '"' || l.ch == '`':
		return l.readQuotedIdent(start)
	case l.ch == '?':
		l.readChar()
		return token{Type: tokenParam, Literal: "?", Start: start, End: l.pos}
	case l.ch == '$' && isDigit(l.peekChar()):
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return token{Type: tokenParam, Literal: l.input[start:l.pos], Start: start, End: l.pos}
	case isIdentStart(l.ch):
		for isIdentPart(l.ch) {
			l.readChar()
		}
		return token{Type: tokenIdent, Literal: l.input[start:l.pos], Start: start, End: l.pos}
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' ||
			((l.ch == '+' || l.ch == '-') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E')) {
			l.readChar()
		}
		return token{Type: tokenNumber, Literal: l.input[start:l.pos], Start: start, End: l.pos}
	default:
		ch := l.ch
		l.readChar()
		return token{Type: tokenSymbol, Literal: string(ch), Start: start, End: l.pos}
	}
}

func (l *lexer) readString(start int) token {
	l.readChar() // opening quote
	for {
		if l.ch == 0 {
			return token{Type: tokenIllegal, Literal: l.input[start:l.pos], Start: start, End: l.pos}
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		l.readChar()
	}
	return token{Type: tokenString, Literal: l.input[start:l.pos], Start: start, End: l.pos}
}

func (l *lexer) readQuotedIdent(start int) token {
	quote := l.ch
	l.readChar()
	var b strings.Builder
	for {
		if l.ch == 0 {
			return token{Type: tokenIllegal, Literal: l.input[start:l.pos], Start: start, End: l.pos}
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				b.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return token{Type: tokenQuotedIdent, Literal: b.String(), Quote: quote, Start: start, End: l.pos}
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

// tokenize runs the lexer over the whole input, excluding the EOF token.
func tokenize(input string) []token {
	l := newLexer(input)
	var toks []token
	for {
		tok := l.next()
		if tok.Type == tokenEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

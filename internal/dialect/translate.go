package dialect

import (
	"fmt"
	"strings"

	"querybridge/internal/dberr"
)

// Validate checks that sql is a single, superficially well-formed statement:
// one statement only, balanced parentheses and brackets, terminated strings
// and quoted identifiers. It does not judge statement forms; engine-specific
// constructs pass through and the engine decides.
func Validate(engine dberr.Engine, sql string) error {
	toks := tokenize(sql)
	if len(toks) == 0 {
		return syntaxErr(engine, "empty statement")
	}

	depth := 0
	bracket := 0
	for i, tok := range toks {
		switch tok.Type {
		case tokenIllegal:
			return syntaxErr(engine, "unterminated string or quoted identifier")
		case tokenSemicolon:
			for _, rest := range toks[i+1:] {
				if rest.Type != tokenSemicolon {
					return syntaxErr(engine, "multiple statements are not allowed")
				}
			}
		case tokenSymbol:
			switch tok.Literal {
			case "(":
				depth++
			case ")":
				depth--
				if depth < 0 {
					return syntaxErr(engine, "unbalanced parentheses")
				}
			case "[":
				bracket++
			case "]":
				bracket--
				if bracket < 0 {
					return syntaxErr(engine, "unbalanced brackets")
				}
			}
		}
	}
	if depth != 0 {
		return syntaxErr(engine, "unbalanced parentheses")
	}
	if bracket != 0 {
		return syntaxErr(engine, "unbalanced brackets")
	}
	return nil
}

// readKeywords lists the statement forms that produce rows without mutating
// state. Export jobs only accept these.
var readKeywords = map[string]bool{
	"select": true, "with": true, "values": true, "table": true,
	"show": true, "describe": true, "desc": true, "explain": true, "pragma": true,
}

// ValidateReadOnly checks the statement on top of Validate's rules and
// additionally requires a row-producing, non-mutating form. Parenthesized
// set operations count; the keyword inside the opening parens decides.
func ValidateReadOnly(engine dberr.Engine, sql string) error {
	if err := Validate(engine, sql); err != nil {
		return err
	}
	first := firstKeyword(tokenize(sql))
	if !readKeywords[strings.ToLower(first)] {
		return syntaxErr(engine, fmt.Sprintf("%q statements cannot be exported", strings.ToUpper(first)))
	}
	return nil
}

// firstKeyword returns the statement's leading keyword, looking through any
// opening parentheses.
func firstKeyword(toks []token) string {
	for _, tok := range toks {
		if tok.Type == tokenSymbol && tok.Literal == "(" {
			continue
		}
		return tok.Literal
	}
	return ""
}

func syntaxErr(engine dberr.Engine, reason string) error {
	return &dberr.QueryError{
		Engine: engine,
		Reason: dberr.QuerySyntax,
		Err:    fmt.Errorf("dialect: %s", reason),
	}
}

// Translate rewrites the dialect-variable constructs in sql for the target
// engine: quoted identifiers take the engine's quote character and boolean
// keyword literals take the engine's form. Everything else, including
// whitespace and comments, is preserved byte for byte. If the text does not
// tokenize cleanly it is returned unchanged; translation is best-effort.
func Translate(engine dberr.Engine, sql string) string {
	toks := tokenize(sql)
	for _, tok := range toks {
		if tok.Type == tokenIllegal {
			return sql
		}
	}

	var b strings.Builder
	b.Grow(len(sql))
	prev := 0
	for _, tok := range toks {
		b.WriteString(sql[prev:tok.Start])
		b.WriteString(renderToken(engine, sql, tok))
		prev = tok.End
	}
	b.WriteString(sql[prev:])
	return b.String()
}

func renderToken(engine dberr.Engine, sql string, tok token) string {
	switch tok.Type {
	case tokenQuotedIdent:
		return QuoteIdent(engine, tok.Literal)
	case tokenIdent:
		if engine == dberr.EngineSQLite {
			switch strings.ToLower(tok.Literal) {
			case "true":
				return "1"
			case "false":
				return "0"
			}
		}
		return sql[tok.Start:tok.End]
	default:
		return sql[tok.Start:tok.End]
	}
}

// QuoteIdent quotes one identifier for the target engine, doubling any
// embedded quote character.
func QuoteIdent(engine dberr.Engine, name string) string {
	if engine == dberr.EngineMySQL || engine == dberr.EngineClickHouse {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a dotted object path part by part.
func QuoteQualified(engine dberr.Engine, parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, QuoteIdent(engine, p))
	}
	return strings.Join(quoted, ".")
}

// StripTrailingSemicolons trims whitespace and any trailing statement
// terminators so the text can be embedded in a subquery.
func StripTrailingSemicolons(sql string) string {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// WrapLimit pages a read statement by wrapping it in a subquery with LIMIT
// and OFFSET. Statements that do not produce rows are returned unchanged;
// the caller applies its own limit handling there.
func WrapLimit(engine dberr.Engine, sql string, limit, offset int64) string {
	if limit <= 0 && offset <= 0 {
		return sql
	}
	toks := tokenize(sql)
	if len(toks) == 0 || toks[0].Type != tokenIdent {
		return sql
	}
	switch strings.ToLower(toks[0].Literal) {
	case "select", "with", "values", "table", "show", "describe", "desc", "pragma":
	default:
		return sql
	}

	inner := StripTrailingSemicolons(sql)
	out := fmt.Sprintf("SELECT * FROM (%s) AS paged", inner)
	if limit > 0 {
		out += fmt.Sprintf(" LIMIT %d", limit)
	} else if offset > 0 {
		// MySQL and SQLite reject OFFSET without LIMIT.
		switch engine {
		case dberr.EngineMySQL:
			out += " LIMIT 18446744073709551615"
		case dberr.EngineSQLite:
			out += " LIMIT -1"
		}
	}
	if offset > 0 {
		out += fmt.Sprintf(" OFFSET %d", offset)
	}
	return out
}

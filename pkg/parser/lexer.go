package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// tsqlLexer defines the lexer for the bounded T-SQL DDL subset. The
// classifier and dependency scanner operate on this token stream rather than
// raw text, so string literals and comments can never be mistaken for
// identifiers or keywords.
var tsqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\r\n]*`},
	{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `'([^']|'')*'`},
	{Name: "BracketIdent", Pattern: `\[[^\]]*\]`},
	{Name: "QuotedIdent", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `\d+(\.\d*)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_@#][a-zA-Z0-9_@#$]*`},
	{Name: "Punct", Pattern: `[(),.;=+\-*/%<>!:&|^~]`},
	{Name: "Whitespace", Pattern: `[\s\x{FEFF}]+`},
})

// symbolNames maps lexer token types back to their rule names so tokens can
// be classified by kind after lexing.
var symbolNames = func() map[lexer.TokenType]string {
	names := make(map[lexer.TokenType]string, len(tsqlLexer.Symbols()))
	for name, typ := range tsqlLexer.Symbols() {
		names[typ] = name
	}
	return names
}()

type (
	// token is a single lexed token with its rule name attached.
	token struct {
		Kind  string
		Value string
	}
)

func (t token) isComment() bool {
	return t.Kind == "Comment" || t.Kind == "MultilineComment"
}

func (t token) isIdent() bool {
	return t.Kind == "Ident" || t.Kind == "BracketIdent" || t.Kind == "QuotedIdent"
}

func (t token) isPunct(v string) bool {
	return t.Kind == "Punct" && t.Value == v
}

// tokenize lexes the provided SQL text into the full token stream, including
// comments (needed for directive markers) but excluding whitespace.
func tokenize(sql string) ([]token, error) {
	lx, err := tsqlLexer.LexString("", sql)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lex statement")
	}

	var tokens []token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, errors.Wrap(err, "failed to lex statement")
		}
		if tok.EOF() {
			return tokens, nil
		}

		kind := symbolNames[tok.Type]
		if kind == "Whitespace" {
			continue
		}
		tokens = append(tokens, token{Kind: kind, Value: tok.Value})
	}
}

// significant filters the token stream down to executable tokens, dropping
// comments. Classification and dependency scanning run over this view.
func significant(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		if !t.isComment() {
			out = append(out, t)
		}
	}
	return out
}

// Package script implements the scripting language's lexer, parser, and
// statement AST: the indentation-sensitive grammar that scripts (and single
// interactive lines) are compiled into before the executor walks them.
package script

import "fmt"

// TokenType identifies the lexical class of a Token.
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	COMMAND    // first identifier on a logical line
	PARAMETER  // -name
	VARIABLE   // $name
	ASSIGNMENT // =
	STRING     // quoted literal
	NUMBER     // integer or float literal
	KEYWORD    // foreach, in, if, else, elseif, try, catch, finally, while, for, parallel, function, return, break, continue, remote, as
	OPERATOR   // + - * / % < > ! == != <= >= && ||
	IDENTIFIER // any other bare word

	LEFT_BRACKET
	RIGHT_BRACKET
	LEFT_PAREN
	RIGHT_PAREN
	COMMA
	DOT
	COLON
	SEMICOLON
	PIPE

	COMMENT
	NEWLINE
	INDENT
	DEDENT
)

var tokenNames = [...]string{
	EOF:          "EOF",
	ILLEGAL:      "ILLEGAL",
	COMMAND:      "COMMAND",
	PARAMETER:    "PARAMETER",
	VARIABLE:     "VARIABLE",
	ASSIGNMENT:   "ASSIGNMENT",
	STRING:       "STRING",
	NUMBER:       "NUMBER",
	KEYWORD:      "KEYWORD",
	OPERATOR:     "OPERATOR",
	IDENTIFIER:   "IDENTIFIER",
	LEFT_BRACKET:  "LEFT_BRACKET",
	RIGHT_BRACKET: "RIGHT_BRACKET",
	LEFT_PAREN:    "LEFT_PAREN",
	RIGHT_PAREN:   "RIGHT_PAREN",
	COMMA:         "COMMA",
	DOT:           "DOT",
	COLON:         "COLON",
	SEMICOLON:     "SEMICOLON",
	PIPE:          "PIPE",
	COMMENT:       "COMMENT",
	NEWLINE:       "NEWLINE",
	INDENT:        "INDENT",
	DEDENT:        "DEDENT",
}

func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Keywords is the fixed set of reserved words; any other bare word lexes as
// IDENTIFIER (or COMMAND, when it's the first word of a logical line).
var Keywords = map[string]bool{
	"foreach": true, "in": true, "if": true, "else": true, "elseif": true,
	"try": true, "catch": true, "finally": true, "while": true, "for": true,
	"parallel": true, "function": true, "return": true, "break": true,
	"continue": true, "remote": true, "as": true,
}

// Token is one lexical unit: its type, decoded value, and source position.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at line %d, col %d", t.Type, t.Value, t.Line, t.Column)
}

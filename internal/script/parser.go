package script

import "fmt"

// Parser turns a token stream into a Statement AST via recursive descent,
// following the same stack-machine shape as the lexer's INDENT/DEDENT
// tracking: each block-introducing production consumes NEWLINE, INDENT,
// a run of statements, then DEDENT.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser filters comments out of the token stream (mirroring the
// source parser's constructor) and returns a Parser ready to parse.
func NewParser(tokens []Token) *Parser {
	filtered := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Type != COMMENT {
			filtered = append(filtered, t)
		}
	}
	return &Parser{tokens: filtered}
}

func (p *Parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Type: EOF}
}

func (p *Parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return Token{Type: EOF}
}

func (p *Parser) advance() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) match(t TokenType) bool {
	if p.peek().Type == t {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) (Token, error) {
	if p.peek().Type == t {
		return p.advance(), nil
	}
	peek := p.peek()
	return Token{}, fmt.Errorf("expected %s, got %s(%q) at line %d", t, peek.Type, peek.Value, peek.Line)
}

func (p *Parser) expectKeyword(value string) (Token, error) {
	tok := p.peek()
	if tok.Type != KEYWORD || tok.Value != value {
		return Token{}, fmt.Errorf("expected keyword %q, got %s(%q) at line %d", value, tok.Type, tok.Value, tok.Line)
	}
	return p.advance(), nil
}

// Parse consumes the whole token stream into a top-level CodeBlock.
func (p *Parser) Parse() (*CodeBlock, error) {
	block := &CodeBlock{}
	for p.peek().Type != EOF {
		for p.match(NEWLINE) {
		}
		if p.peek().Type == EOF {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Append(stmt)
		}
	}
	return block, nil
}

// parseStatement parses exactly one statement, or returns (nil, nil) after
// skipping one unrecognized token — a degenerate-input guard that also
// guarantees the caller's loop always makes progress.
func (p *Parser) parseStatement() (Statement, error) {
	tok := p.peek()

	switch tok.Type {
	case VARIABLE:
		if p.peekAt(1).Type == ASSIGNMENT {
			p.advance()
			p.advance()
			expr, err := p.parseExpressionUntilColon()
			if err != nil {
				return nil, err
			}
			return &SetVariableStatement{VariableName: tok.Value, Expression: expr}, nil
		}

	case KEYWORD:
		switch tok.Value {
		case "foreach":
			p.advance()
			return p.parseForEach()
		case "try":
			p.advance()
			return p.parseTryCatch()
		case "if":
			p.advance()
			return p.parseIf()
		case "while":
			p.advance()
			return p.parseWhile()
		case "parallel":
			p.advance()
			return p.parseParallel()
		case "function":
			p.advance()
			return p.parseFunction()
		case "remote":
			p.advance()
			return p.parseRemote()
		case "return":
			p.advance()
			return p.parseReturn()
		case "break":
			p.advance()
			return &BreakStatement{}, nil
		case "continue":
			p.advance()
			return &ContinueStatement{}, nil
		}

	case COMMAND:
		return p.parseCommandOrBlock()

	case EOF:
		return nil, nil
	}

	// Unrecognized token in statement position (e.g. a stray PARAMETER, a
	// dangling 'else'/'catch' with nothing to attach to, an IDENTIFIER):
	// skip it and let the caller continue. Always advances, so the parse
	// loop cannot spin.
	p.advance()
	return nil, nil
}

// parseCommandOrBlock handles three shapes that all start with a COMMAND
// token: `name: <block>` (generic named block), `name arg...` (a plain
// command), and `name arg... | name2 arg...` (a pipeline).
func (p *Parser) parseCommandOrBlock() (Statement, error) {
	nameTok := p.advance()

	if p.match(COLON) {
		return p.parseIndentedBlock(nameTok.Value)
	}

	first, err := p.finishCommandStatement(nameTok.Value)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != PIPE {
		return first, nil
	}

	stages := []*CommandStatement{first}
	for p.match(PIPE) {
		stageTok := p.peek()
		if stageTok.Type != COMMAND && stageTok.Type != IDENTIFIER {
			return nil, fmt.Errorf("expected command name after '|' at line %d", stageTok.Line)
		}
		p.advance()
		stage, err := p.finishCommandStatement(stageTok.Value)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return &PipelineStatement{Commands: stages}, nil
}

// finishCommandStatement collects the argument tokens for one command (or
// one pipeline stage) up to NEWLINE, PIPE, DEDENT or EOF, and serializes
// them back into an argument string.
func (p *Parser) finishCommandStatement(name string) (*CommandStatement, error) {
	var tokens []Token
	for {
		t := p.peek()
		if t.Type == NEWLINE || t.Type == EOF || t.Type == DEDENT || t.Type == PIPE {
			break
		}
		tokens = append(tokens, p.advance())
	}
	return &CommandStatement{CommandName: name, ArgsText: tokensToArgString(tokens)}, nil
}

func (p *Parser) parseForEach() (Statement, error) {
	itemTok, err := p.expect(VARIABLE)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	collectionExpr, err := p.parseExpressionUntilColon()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	return &ForEachStatement{ItemVar: itemTok.Value, CollectionExpr: collectionExpr, Body: body}, nil
}

func (p *Parser) parseTryCatch() (Statement, error) {
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	tryBlock, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("catch"); err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	catchBlock, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	var finallyBlock *CodeBlock
	if p.peek().Type == KEYWORD && p.peek().Value == "finally" {
		p.advance()
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		finallyBlock, err = p.parseIndentedBlock("")
		if err != nil {
			return nil, err
		}
	}
	return &TryCatchStatement{TryBlock: tryBlock, CatchBlock: catchBlock, FinallyBlock: finallyBlock}, nil
}

func (p *Parser) parseIf() (Statement, error) {
	var conditions []string
	var blocks []*CodeBlock

	cond, err := p.parseExpressionUntilColon()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	block, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	conditions = append(conditions, cond)
	blocks = append(blocks, block)

	for p.peek().Type == KEYWORD && p.peek().Value == "elseif" {
		p.advance()
		cond, err := p.parseExpressionUntilColon()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		block, err := p.parseIndentedBlock("")
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
		blocks = append(blocks, block)
	}

	var elseBlock *CodeBlock
	if p.peek().Type == KEYWORD && p.peek().Value == "else" {
		p.advance()
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		elseBlock, err = p.parseIndentedBlock("")
		if err != nil {
			return nil, err
		}
	}

	return &IfStatement{Conditions: conditions, Blocks: blocks, ElseBlock: elseBlock}, nil
}

func (p *Parser) parseWhile() (Statement, error) {
	cond, err := p.parseExpressionUntilColon()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	return &WhileStatement{Condition: cond, Body: body}, nil
}

// parseParallel handles `parallel [-max N] [<expr> [as $item]]: <block>`.
func (p *Parser) parseParallel() (Statement, error) {
	maxConcurrent := 10
	if p.peek().Type == PARAMETER && p.peek().Value == "-max" {
		p.advance()
		numTok, err := p.expect(NUMBER)
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(numTok.Value, "%d", &maxConcurrent); err != nil {
			return nil, fmt.Errorf("invalid -max value %q at line %d", numTok.Value, numTok.Line)
		}
	}

	var collectionExpr, itemVar string
	if p.peek().Type != COLON {
		expr, err := p.parseExpressionUntilColonOrAs()
		if err != nil {
			return nil, err
		}
		collectionExpr = expr
		if p.peek().Type == KEYWORD && p.peek().Value == "as" {
			p.advance()
			itemTok, err := p.expect(VARIABLE)
			if err != nil {
				return nil, err
			}
			itemVar = itemTok.Value
		}
	}

	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	return &ParallelBlock{Body: body, CollectionExpr: collectionExpr, ItemVar: itemVar, MaxConcurrent: maxConcurrent}, nil
}

// parseRemote handles `remote <expr> [as $target]: <block>`.
func (p *Parser) parseRemote() (Statement, error) {
	systemExpr, err := p.parseExpressionUntilColonOrAs()
	if err != nil {
		return nil, err
	}
	var targetVar string
	if p.peek().Type == KEYWORD && p.peek().Value == "as" {
		p.advance()
		targetTok, err := p.expect(VARIABLE)
		if err != nil {
			return nil, err
		}
		targetVar = targetTok.Value
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	return &RemoteBlockStatement{SystemExpr: systemExpr, Body: body, TargetVar: targetVar}, nil
}

// parseFunction handles `function name($p1, $p2=default, ...): <block>`.
func (p *Parser) parseFunction() (Statement, error) {
	nameTok := p.peek()
	if nameTok.Type != IDENTIFIER && nameTok.Type != COMMAND {
		return nil, fmt.Errorf("expected function name, got %s(%q) at line %d", nameTok.Type, nameTok.Value, nameTok.Line)
	}
	p.advance()

	if _, err := p.expect(LEFT_PAREN); err != nil {
		return nil, err
	}
	var params []FunctionParam
	for p.peek().Type != RIGHT_PAREN {
		pTok, err := p.expect(VARIABLE)
		if err != nil {
			return nil, err
		}
		param := FunctionParam{Name: pTok.Value}
		if p.match(ASSIGNMENT) {
			def, err := p.parseExpressionUntilCommaOrParen()
			if err != nil {
				return nil, err
			}
			param.HasDefault = true
			param.Default = def
		}
		params = append(params, param)
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.expect(RIGHT_PAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseIndentedBlock("")
	if err != nil {
		return nil, err
	}
	return &FunctionDefinitionStatement{Name: nameTok.Value, Parameters: params, Body: body}, nil
}

func (p *Parser) parseReturn() (Statement, error) {
	if p.peek().Type == NEWLINE || p.peek().Type == EOF || p.peek().Type == DEDENT {
		return &ReturnStatement{}, nil
	}
	expr, err := p.parseExpressionUntilColon()
	if err != nil {
		return nil, err
	}
	return &ReturnStatement{Expression: expr}, nil
}

// parseIndentedBlock parses `NEWLINE INDENT statement+ DEDENT`, tagging the
// resulting CodeBlock with blockType (empty for control-flow bodies, the
// command name for a generic `name: <block>`).
func (p *Parser) parseIndentedBlock(blockType string) (*CodeBlock, error) {
	if _, err := p.expect(NEWLINE); err != nil {
		return nil, err
	}
	if _, err := p.expect(INDENT); err != nil {
		return nil, err
	}

	block := &CodeBlock{BlockType: blockType}
	for p.peek().Type != DEDENT && p.peek().Type != EOF {
		for p.match(NEWLINE) {
		}
		if p.peek().Type == DEDENT || p.peek().Type == EOF {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Append(stmt)
		}
	}
	p.match(DEDENT)
	return block, nil
}

func (p *Parser) parseExpressionUntilColon() (string, error) {
	return p.parseExpressionWhile(func(t Token) bool {
		return t.Type != NEWLINE && t.Type != COLON && t.Type != EOF
	})
}

func (p *Parser) parseExpressionUntilColonOrAs() (string, error) {
	return p.parseExpressionWhile(func(t Token) bool {
		if t.Type == NEWLINE || t.Type == COLON || t.Type == EOF {
			return false
		}
		return !(t.Type == KEYWORD && t.Value == "as")
	})
}

func (p *Parser) parseExpressionUntilCommaOrParen() (string, error) {
	return p.parseExpressionWhile(func(t Token) bool {
		return t.Type != COMMA && t.Type != RIGHT_PAREN && t.Type != NEWLINE && t.Type != EOF
	})
}

func (p *Parser) parseExpressionWhile(keepGoing func(Token) bool) (string, error) {
	var tokens []Token
	for keepGoing(p.peek()) {
		tokens = append(tokens, p.advance())
	}
	return tokensToExpression(tokens), nil
}

// tokensToArgString reconstructs a command's raw argument text from its
// tokens: strings are re-quoted, variables regain their '$' sigil, every
// other token contributes its literal text, space-joined.
func tokensToArgString(tokens []Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		switch t.Type {
		case STRING:
			parts = append(parts, quoteArg(t.Value))
		case VARIABLE:
			parts = append(parts, "$"+t.Value)
		default:
			parts = append(parts, t.Value)
		}
	}
	return joinSpaced(parts)
}

// tokensToExpression reconstructs an expression's source text the same way,
// used for $var assignment RHS, if/while conditions and collection
// expressions — everywhere the grammar says "every token up to the
// terminator, serialized back to a string."
func tokensToExpression(tokens []Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		switch t.Type {
		case STRING:
			parts = append(parts, quoteArg(t.Value))
		case VARIABLE:
			parts = append(parts, "$"+t.Value)
		default:
			parts = append(parts, t.Value)
		}
	}
	return joinSpaced(parts)
}

func quoteArg(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}

func joinSpaced(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// ParseScript tokenizes and parses a full script, returning the top-level
// CodeBlock.
func ParseScript(text string) (*CodeBlock, error) {
	tokens, err := NewLexer().Tokenize(text)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// ParseLine is a convenience for one-shot prompt input: parse text, and if
// the resulting block holds exactly one statement, return that statement
// directly instead of a one-element block.
func ParseLine(line string) (Statement, error) {
	block, err := ParseScript(line)
	if err != nil {
		return nil, err
	}
	if block.Len() == 1 {
		return block.Statements[0], nil
	}
	return block, nil
}

package script

// FunctionParam is one formal parameter of a user-defined function: a name
// and an optional default expression text.
type FunctionParam struct {
	Name       string
	Default    string // empty means no default
	HasDefault bool
}

// Executor is the narrow surface a Statement needs from whatever is
// interpreting the AST. The concrete executor (a different package, to
// avoid this package depending on it) implements every method; each
// Statement.Execute is a one-line dispatch into it.
type Executor interface {
	ExecuteCommand(name, argsText string) (any, error)
	SetVariable(name, expr string) (any, error)
	ExecuteSequential(stmts []Statement) (any, error)
	ExecuteParallelStatements(stmts []Statement) (any, error)
	ExecuteForEach(itemVar, collectionExpr string, body *CodeBlock) (any, error)
	ExecuteParallelForeach(itemVar, collectionExpr string, body *CodeBlock, maxConcurrent int) (any, error)
	ExecuteParallelBlock(body *CodeBlock, maxConcurrent int) (any, error)
	ExecuteRemoteBlock(systemExpr string, body *CodeBlock, targetVar string) (any, error)
	ExecuteTryCatch(tryBlock, catchBlock, finallyBlock *CodeBlock) (any, error)
	ExecuteBreak() (any, error)
	ExecuteContinue() (any, error)
	ExecuteIf(conditions []string, blocks []*CodeBlock, elseBlock *CodeBlock) (any, error)
	ExecuteWhile(condition string, body *CodeBlock) (any, error)
	RegisterFunction(name string, parameters []FunctionParam, body *CodeBlock) (any, error)
	ExecuteReturn(expr string) (any, error)
	ExecutePipeline(commands []*CommandStatement) (any, error)
}

// Statement is one executable AST node.
type Statement interface {
	Execute(ex Executor) (any, error)
}

// CommandStatement invokes a registered command with its raw argument text.
type CommandStatement struct {
	CommandName string
	ArgsText    string
}

func (s *CommandStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteCommand(s.CommandName, s.ArgsText)
}

// SetVariableStatement is `$name = expression`.
type SetVariableStatement struct {
	VariableName string
	Expression   string
}

func (s *SetVariableStatement) Execute(ex Executor) (any, error) {
	return ex.SetVariable(s.VariableName, s.Expression)
}

// ForEachStatement is `foreach $item in <expr>: <block>`.
type ForEachStatement struct {
	ItemVar        string
	CollectionExpr string
	Body           *CodeBlock
}

func (s *ForEachStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteForEach(s.ItemVar, s.CollectionExpr, s.Body)
}

// ParallelBlock is `parallel [<expr> [as $item]]: <block>`.
type ParallelBlock struct {
	Body           *CodeBlock
	CollectionExpr string // empty when this is a plain parallel block
	ItemVar        string
	MaxConcurrent  int
}

func (s *ParallelBlock) Execute(ex Executor) (any, error) {
	if s.CollectionExpr != "" {
		itemVar := s.ItemVar
		if itemVar == "" {
			itemVar = "_item"
		}
		return ex.ExecuteParallelForeach(itemVar, s.CollectionExpr, s.Body, s.MaxConcurrent)
	}
	return ex.ExecuteParallelBlock(s.Body, s.MaxConcurrent)
}

// RemoteBlockStatement is `remote <expr> [as $target]: <block>`.
type RemoteBlockStatement struct {
	SystemExpr string
	Body       *CodeBlock
	TargetVar  string
}

func (s *RemoteBlockStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteRemoteBlock(s.SystemExpr, s.Body, s.TargetVar)
}

// TryCatchStatement is `try: <block> catch: <block> [finally: <block>]`.
type TryCatchStatement struct {
	TryBlock     *CodeBlock
	CatchBlock   *CodeBlock
	FinallyBlock *CodeBlock // nil when absent
}

func (s *TryCatchStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteTryCatch(s.TryBlock, s.CatchBlock, s.FinallyBlock)
}

// BreakStatement unwinds the innermost loop.
type BreakStatement struct{}

func (s *BreakStatement) Execute(ex Executor) (any, error) { return ex.ExecuteBreak() }

// ContinueStatement skips to the next iteration of the innermost loop.
type ContinueStatement struct{}

func (s *ContinueStatement) Execute(ex Executor) (any, error) { return ex.ExecuteContinue() }

// CodeBlock is a sequence of statements, optionally tagged with a block
// type (e.g. "parallel") that changes how the executor runs it.
type CodeBlock struct {
	Statements []Statement
	BlockType  string // empty for an ordinary sequential block
}

func (b *CodeBlock) Execute(ex Executor) (any, error) {
	if b.BlockType == "parallel" {
		return ex.ExecuteParallelStatements(b.Statements)
	}
	return ex.ExecuteSequential(b.Statements)
}

// Append adds a statement to the block.
func (b *CodeBlock) Append(s Statement) { b.Statements = append(b.Statements, s) }

// Len reports the number of top-level statements in the block.
func (b *CodeBlock) Len() int { return len(b.Statements) }

// IfStatement is `if <expr>: <block>` with optional `elseif`/`else` chains.
type IfStatement struct {
	Conditions []string
	Blocks     []*CodeBlock // len(Blocks) == len(Conditions)
	ElseBlock  *CodeBlock   // nil when absent
}

func (s *IfStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteIf(s.Conditions, s.Blocks, s.ElseBlock)
}

// WhileStatement is `while <expr>: <block>`.
type WhileStatement struct {
	Condition string
	Body      *CodeBlock
}

func (s *WhileStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteWhile(s.Condition, s.Body)
}

// FunctionDefinitionStatement is `function name($p1, $p2=default): <block>`.
type FunctionDefinitionStatement struct {
	Name       string
	Parameters []FunctionParam
	Body       *CodeBlock
}

func (s *FunctionDefinitionStatement) Execute(ex Executor) (any, error) {
	return ex.RegisterFunction(s.Name, s.Parameters, s.Body)
}

// ReturnStatement is `return [expr]`, valid only inside a function body.
type ReturnStatement struct {
	Expression string // empty means no value
}

func (s *ReturnStatement) Execute(ex Executor) (any, error) {
	return ex.ExecuteReturn(s.Expression)
}

// PipelineStatement is `cmd1 | cmd2 | cmd3`.
type PipelineStatement struct {
	Commands []*CommandStatement
}

func (s *PipelineStatement) Execute(ex Executor) (any, error) {
	return ex.ExecutePipeline(s.Commands)
}

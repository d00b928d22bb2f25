package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(Tokenize(src))
	require.NoError(t, err)
	require.NotNil(t, prog)
	return prog
}

func TestParseFunctionDeclaration(t *testing.T) {
	prog := parse(t, `
		function add(a, b) {
			return a + b;
		}
	`)
	require.Len(t, prog.Stmts, 1)
	fn, ok := prog.Stmts[0].(*FnDecl)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, []string{"a", "b"}, fn.Params)
	require.Len(t, fn.Body.Stmts, 1)

	ret, ok := fn.Body.Stmts[0].(*Return)
	require.True(t, ok)
	bin, ok := ret.Value.(*BinOp)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)
}

func TestParseVarDeclWithAndWithoutInit(t *testing.T) {
	prog := parse(t, `
		var x = 1;
		var y;
	`)
	require.Len(t, prog.Stmts, 2)

	x := prog.Stmts[0].(*VarDecl)
	assert.Equal(t, "x", x.Name)
	require.NotNil(t, x.Init)
	lit, ok := x.Init.(*NumberLit)
	require.True(t, ok)
	assert.EqualValues(t, 1, lit.Value)

	y := prog.Stmts[1].(*VarDecl)
	assert.Equal(t, "y", y.Name)
	assert.Nil(t, y.Init)
}

func TestParseAssignmentVsExpressionStatementBacktrack(t *testing.T) {
	prog := parse(t, `
		x = 1;
		foo();
	`)
	require.Len(t, prog.Stmts, 2)

	assign, ok := prog.Stmts[0].(*Assign)
	require.True(t, ok)
	assert.Equal(t, "x", assign.Name)

	expr, ok := prog.Stmts[1].(*ExprStmt)
	require.True(t, ok)
	call, ok := expr.Expr.(*Call)
	require.True(t, ok)
	assert.Equal(t, "foo", call.Name)
}

func TestParseIfElse(t *testing.T) {
	prog := parse(t, `
		if (x < 1) {
			return 1;
		} else {
			return 2;
		}
	`)
	ifs := prog.Stmts[0].(*If)
	assert.NotNil(t, ifs.Then)
	assert.NotNil(t, ifs.Else)

	cond, ok := ifs.Cond.(*BinOp)
	require.True(t, ok)
	assert.Equal(t, "<", cond.Op)
}

func TestParseIfWithoutElse(t *testing.T) {
	prog := parse(t, `if (true) { x = 1; }`)
	ifs := prog.Stmts[0].(*If)
	assert.Nil(t, ifs.Else)
}

func TestParseWhileLoop(t *testing.T) {
	prog := parse(t, `
		while (x < 10) {
			x = x + 1;
		}
	`)
	w := prog.Stmts[0].(*While)
	require.NotNil(t, w.Body)
	block, ok := w.Body.(*Block)
	require.True(t, ok)
	require.Len(t, block.Stmts, 1)
}

func TestParsePrecedenceClimbing(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3): the outer node is '+'.
	prog := parse(t, `var x = 1 + 2 * 3;`)
	decl := prog.Stmts[0].(*VarDecl)
	top := decl.Init.(*BinOp)
	assert.Equal(t, "+", top.Op)
	right := top.Right.(*BinOp)
	assert.Equal(t, "*", right.Op)
}

func TestParseLogicalPrecedenceBelowEquality(t *testing.T) {
	// a == b && c == d parses as (a==b) && (c==d).
	prog := parse(t, `var r = a == b && c == d;`)
	decl := prog.Stmts[0].(*VarDecl)
	top := decl.Init.(*BinOp)
	assert.Equal(t, "&&", top.Op)
	_, ok := top.Left.(*BinOp)
	assert.True(t, ok)
	_, ok = top.Right.(*BinOp)
	assert.True(t, ok)
}

func TestParseUnaryIsRightAssociative(t *testing.T) {
	prog := parse(t, `var x = !!a;`)
	decl := prog.Stmts[0].(*VarDecl)
	outer := decl.Init.(*UnaryOp)
	assert.Equal(t, "!", outer.Op)
	inner, ok := outer.Operand.(*UnaryOp)
	require.True(t, ok)
	assert.Equal(t, "!", inner.Op)
}

func TestParseCallWithArguments(t *testing.T) {
	prog := parse(t, `foo(1, x, bar(2));`)
	expr := prog.Stmts[0].(*ExprStmt)
	call := expr.Expr.(*Call)
	assert.Equal(t, "foo", call.Name)
	require.Len(t, call.Args, 3)
	inner, ok := call.Args[2].(*Call)
	require.True(t, ok)
	assert.Equal(t, "bar", inner.Name)
}

func TestParseCallOnNonIdentifierIsError(t *testing.T) {
	_, err := Parse(Tokenize(`(1+2)(3);`))
	require.Error(t, err)
}

func TestParseParenthesizedExpression(t *testing.T) {
	prog := parse(t, `var x = (1 + 2) * 3;`)
	decl := prog.Stmts[0].(*VarDecl)
	top := decl.Init.(*BinOp)
	assert.Equal(t, "*", top.Op)
	left, ok := top.Left.(*BinOp)
	require.True(t, ok)
	assert.Equal(t, "+", left.Op)
}

func TestParseReturnWithoutValue(t *testing.T) {
	prog := parse(t, `
		function f() {
			return;
		}
	`)
	fn := prog.Stmts[0].(*FnDecl)
	ret := fn.Body.Stmts[0].(*Return)
	assert.Nil(t, ret.Value)
}

func TestParseMissingSemicolonIsError(t *testing.T) {
	_, err := Parse(Tokenize(`var x = 1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected ';'")
}

func TestParseMissingClosingParenIsError(t *testing.T) {
	_, err := Parse(Tokenize(`if (x < 1 { return 1; }`))
	require.Error(t, err)
}

func TestParseUnexpectedTokenReportsLocation(t *testing.T) {
	_, err := Parse(Tokenize("var x = ;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Line 1")
}

func TestParseEmptyFunctionParameterList(t *testing.T) {
	prog := parse(t, `function main() { return 0; }`)
	fn := prog.Stmts[0].(*FnDecl)
	assert.Empty(t, fn.Params)
}

func TestParseNestedBlocks(t *testing.T) {
	prog := parse(t, `
		function f() {
			if (true) {
				while (false) {
					return 1;
				}
			}
		}
	`)
	fn := prog.Stmts[0].(*FnDecl)
	ifs := fn.Body.Stmts[0].(*If)
	thenBlock := ifs.Then.(*Block)
	w := thenBlock.Stmts[0].(*While)
	body := w.Body.(*Block)
	require.Len(t, body.Stmts, 1)
}

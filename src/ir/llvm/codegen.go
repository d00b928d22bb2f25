// Package llvm lowers a SimpleLang syntax tree to LLVM IR and can JIT-execute
// the result, walking the tree node-by-node with tinygo.org/x/go-llvm.
// Programs declare their own `main`, compiled to a single in-process JIT
// run rather than to an object file. The symbol table is flat and
// function-scoped, not block-scoped: variables declared inside nested
// blocks all live in the same table as their enclosing function's
// parameters.
package llvm

import (
	"os"

	"tinygo.org/x/go-llvm"
	"tlog.app/go/errors"

	"simplelang/src/frontend"
	"simplelang/src/util"
)

// Generator lowers one frontend.Program into one LLVM module. Each Generator
// owns exactly one llvm.Context/llvm.Module/llvm.Builder triple and is used
// for a single compilation.
type Generator struct {
	ctx     llvm.Context
	builder llvm.Builder
	module  llvm.Module

	functions map[string]llvm.Value // Declared functions, populated as each FnDecl is lowered; a function must be declared before it can be called.

	namedValues     map[string]llvm.Value // Current function's variable table: name -> alloca.
	scopes          util.Stack             // Saved (namedValues, function, insertion block) triples across nested FnDecl boundaries.
	currentFunction llvm.Value

	jitDone bool // Set once ExecuteJIT has transferred the module to an engine; the generator must not be reused after that point.
}

// funcScope is what genFunction saves on Generator.scopes when lowering a
// FnDecl nested inside another function's body (the grammar does not forbid
// this).
type funcScope struct {
	namedValues map[string]llvm.Value
	fn          llvm.Value
	block       llvm.BasicBlock
}

// Generate lowers prog into a new Generator's LLVM module, named "SimpleLang".
// Top-level statements besides FnDecl are lowered outside any function:
// before the first FnDecl the builder has no insertion block, and after one
// it still points at the end of that function's last block.
func Generate(prog *frontend.Program) (*Generator, error) {
	ctx := llvm.NewContext()
	g := &Generator{
		ctx:       ctx,
		builder:   ctx.NewBuilder(),
		module:    ctx.NewModule("SimpleLang"),
		functions: make(map[string]llvm.Value),
	}

	for _, stmt := range prog.Stmts {
		if fn, ok := stmt.(*frontend.FnDecl); ok {
			if err := g.genFunction(fn); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := g.gen(stmt); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Close releases the Generator's LLVM resources. Safe to call after
// ExecuteJIT, which has already transferred module ownership to the engine.
func (g *Generator) Close() {
	g.builder.Dispose()
	if !g.jitDone {
		g.module.Dispose()
	}
	g.ctx.Dispose()
}

// DumpIR returns the textual LLVM IR of the generated module.
func (g *Generator) DumpIR() (string, error) {
	if g.jitDone {
		return "", errors.New("module already consumed by a JIT run")
	}
	return g.module.String(), nil
}

// WriteIRToFile writes the textual LLVM IR of the generated module to path.
func (g *Generator) WriteIRToFile(path string) error {
	if g.jitDone {
		return errors.New("module already consumed by a JIT run")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "open output file %q", path)
	}
	defer f.Close()
	if _, err := f.WriteString(g.module.String()); err != nil {
		return errors.Wrap(err, "write IR to %q", path)
	}
	return nil
}

// ExecuteJIT verifies the module, transfers its ownership to an MCJIT
// execution engine, locates "main", invokes it with no arguments, and
// returns its signed 32-bit result.
func (g *Generator) ExecuteJIT() (int32, error) {
	if g.jitDone {
		return 0, errors.New("module already consumed by a JIT run")
	}

	if err := llvm.VerifyModule(g.module, llvm.PrintMessageAction); err != nil {
		return 0, errors.New("Module verification failed: %v", err)
	}

	if main := g.module.NamedFunction("main"); main.IsNil() {
		return 0, errors.New("missing main function")
	}

	llvm.LinkInMCJIT()
	if err := llvm.InitializeNativeTarget(); err != nil {
		return 0, errors.Wrap(err, "initialize native target")
	}
	if err := llvm.InitializeNativeAsmPrinter(); err != nil {
		return 0, errors.Wrap(err, "initialize native asm printer")
	}

	engine, err := llvm.NewMCJITCompiler(g.module, llvm.NewMCJITCompilerOptions())
	if err != nil {
		return 0, errors.Wrap(err, "create execution engine")
	}
	g.jitDone = true
	defer engine.Dispose()

	main := engine.FindFunction("main")
	if main.IsNil() {
		return 0, errors.New("missing main function")
	}

	result := engine.RunFunction(main, []llvm.GenericValue{})
	defer result.Dispose()

	return int32(result.Int(true)), nil
}

// ------------------------------
// ----- Statement lowering -----
// ------------------------------

// gen is the central dispatch switch over frontend.Statement. The returned
// bool reports whether stmt directly terminated the current basic block
// with a `return` (propagated through Block so a function's trailing-return
// check works); If and While never report true here even when every path
// inside them returns — any resulting unreachable, unterminated block is
// closed by genFunction's own trailing `ret i32 0` step instead.
func (g *Generator) gen(stmt frontend.Statement) (bool, error) {
	switch s := stmt.(type) {
	case *frontend.Block:
		return g.genBlock(s)
	case *frontend.VarDecl:
		return false, g.genVarDecl(s)
	case *frontend.Assign:
		return false, g.genAssign(s)
	case *frontend.If:
		return false, g.genIf(s)
	case *frontend.While:
		return false, g.genWhile(s)
	case *frontend.Return:
		return true, g.genReturn(s)
	case *frontend.ExprStmt:
		_, err := g.genExpr(s.Expr)
		return false, err
	case *frontend.FnDecl:
		return false, g.genFunction(s)
	default:
		return false, errors.New("code generator: unsupported statement type %T", stmt)
	}
}

func (g *Generator) genBlock(blk *frontend.Block) (bool, error) {
	terminated := false
	for _, s := range blk.Stmts {
		t, err := g.gen(s)
		if err != nil {
			return false, err
		}
		terminated = t
	}
	return terminated, nil
}

// genFunction performs the seven-step function lowering sequence: build the
// function type and declaration, open an entry block, save and reset the
// variable table (and current function/insertion point, for the
// FnDecl-nested-inside-FnDecl case the grammar technically allows), lower
// the body, close with an implicit `ret i32 0` if needed, verify, and
// restore the saved state.
func (g *Generator) genFunction(fn *frontend.FnDecl) error {
	nested := !g.currentFunction.IsNil()
	if nested {
		g.scopes.Push(&funcScope{namedValues: g.namedValues, fn: g.currentFunction, block: g.builder.GetInsertBlock()})
	}

	paramTypes := make([]llvm.Type, len(fn.Params))
	for i := range paramTypes {
		paramTypes[i] = g.ctx.Int32Type()
	}
	ftyp := llvm.FunctionType(g.ctx.Int32Type(), paramTypes, false)
	llfn := llvm.AddFunction(g.module, fn.Name, ftyp)
	for i, p := range llfn.Params() {
		p.SetName(fn.Params[i])
	}
	g.functions[fn.Name] = llfn
	g.currentFunction = llfn
	g.namedValues = make(map[string]llvm.Value, len(fn.Params))

	entry := llvm.AddBasicBlock(llfn, "entry")
	g.builder.SetInsertPointAtEnd(entry)

	for i, p := range llfn.Params() {
		alloca := g.builder.CreateAlloca(g.ctx.Int32Type(), fn.Params[i])
		g.builder.CreateStore(p, alloca)
		g.namedValues[fn.Params[i]] = alloca
	}

	terminated, err := g.genBlock(fn.Body)
	if err != nil {
		llfn.EraseFromParentAsFunction()
		return err
	}
	if !terminated {
		g.builder.CreateRet(llvm.ConstInt(g.ctx.Int32Type(), 0, true))
	}

	if err := llvm.VerifyFunction(llfn, llvm.PrintMessageAction); err != nil {
		llfn.EraseFromParentAsFunction()
		return errors.New("Function verification failed: %v", err)
	}

	if nested {
		saved := g.scopes.Pop().(*funcScope)
		g.namedValues = saved.namedValues
		g.currentFunction = saved.fn
		g.builder.SetInsertPointAtEnd(saved.block)
	} else {
		g.currentFunction = llvm.Value{}
	}
	return nil
}

// genVarDecl emits an entry-block alloca (hoisted regardless of where the
// declaration textually appears) followed by a store of the initializer, or
// of `i32 0` when absent. A repeated declaration of the same name silently
// overwrites the namedValues entry, leaking the prior alloca — this is
// intentional, not a bug.
func (g *Generator) genVarDecl(d *frontend.VarDecl) error {
	var val llvm.Value
	if d.Init != nil {
		v, err := g.genExpr(d.Init)
		if err != nil {
			return err
		}
		val = v
	} else {
		val = llvm.ConstInt(g.ctx.Int32Type(), 0, true)
	}
	alloca := g.allocaInEntry(d.Name)
	g.builder.CreateStore(val, alloca)
	g.namedValues[d.Name] = alloca
	return nil
}

// allocaInEntry places a new alloca at the start of the current function's
// entry block, independent of the builder's current insertion point. This
// is the standard LLVM-frontend hoisting idiom: mem2reg assumes allocas
// live in the entry block, and SimpleLang's grammar allows `var` anywhere
// in a function body.
func (g *Generator) allocaInEntry(name string) llvm.Value {
	entry := g.currentFunction.EntryBasicBlock()
	tmp := g.ctx.NewBuilder()
	defer tmp.Dispose()
	if first := entry.FirstInstruction(); !first.IsNil() {
		tmp.SetInsertPointBefore(first)
	} else {
		tmp.SetInsertPointAtEnd(entry)
	}
	return tmp.CreateAlloca(g.ctx.Int32Type(), name)
}

func (g *Generator) genAssign(a *frontend.Assign) error {
	val, err := g.genExpr(a.Value)
	if err != nil {
		return err
	}
	alloca, ok := g.namedValues[a.Name]
	if !ok {
		return errors.New("Unknown variable referenced: %s", a.Name)
	}
	g.builder.CreateStore(val, alloca)
	return nil
}

func (g *Generator) genReturn(r *frontend.Return) error {
	if r.Value == nil {
		g.builder.CreateRet(llvm.ConstInt(g.ctx.Int32Type(), 0, true))
		return nil
	}
	v, err := g.genExpr(r.Value)
	if err != nil {
		return err
	}
	g.builder.CreateRet(v)
	return nil
}

// genIf builds `then`, optionally `else`, and always `ifcont`, branches into
// them, lowers each, and terminator-guards the fallthrough to ifcont: ifcont
// is unconditionally created and the insertion point unconditionally ends
// there, even when both branches already returned (in which case ifcont is
// left unreachable and unterminated; genFunction's trailing ret closes it
// if it turns out to be the function's final block).
func (g *Generator) genIf(i *frontend.If) error {
	cond, err := g.genExpr(i.Cond)
	if err != nil {
		return err
	}
	cond = g.toBool(cond)

	thenBB := llvm.AddBasicBlock(g.currentFunction, "then")
	contBB := llvm.AddBasicBlock(g.currentFunction, "ifcont")

	if i.Else != nil {
		elseBB := llvm.AddBasicBlock(g.currentFunction, "else")
		g.builder.CreateCondBr(cond, thenBB, elseBB)

		g.builder.SetInsertPointAtEnd(thenBB)
		thenTerm, err := g.gen(i.Then)
		if err != nil {
			return err
		}
		if !thenTerm {
			g.builder.CreateBr(contBB)
		}

		g.builder.SetInsertPointAtEnd(elseBB)
		elseTerm, err := g.gen(i.Else)
		if err != nil {
			return err
		}
		if !elseTerm {
			g.builder.CreateBr(contBB)
		}
	} else {
		g.builder.CreateCondBr(cond, thenBB, contBB)

		g.builder.SetInsertPointAtEnd(thenBB)
		thenTerm, err := g.gen(i.Then)
		if err != nil {
			return err
		}
		if !thenTerm {
			g.builder.CreateBr(contBB)
		}
	}

	g.builder.SetInsertPointAtEnd(contBB)
	return nil
}

// genWhile builds `whilecond`, `whilebody`, `afterwhile` and wires the
// conditional and unconditional branches between them. SimpleLang's grammar
// has no `continue`/`break`, so there is no label stack to maintain across
// the loop body.
func (g *Generator) genWhile(w *frontend.While) error {
	condBB := llvm.AddBasicBlock(g.currentFunction, "whilecond")
	bodyBB := llvm.AddBasicBlock(g.currentFunction, "whilebody")
	afterBB := llvm.AddBasicBlock(g.currentFunction, "afterwhile")

	g.builder.CreateBr(condBB)
	g.builder.SetInsertPointAtEnd(condBB)
	cond, err := g.genExpr(w.Cond)
	if err != nil {
		return err
	}
	cond = g.toBool(cond)
	g.builder.CreateCondBr(cond, bodyBB, afterBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	terminated, err := g.gen(w.Body)
	if err != nil {
		return err
	}
	if !terminated {
		g.builder.CreateBr(condBB)
	}

	g.builder.SetInsertPointAtEnd(afterBB)
	return nil
}

// toBool coerces a value used as a condition to i1 via `icmp ne 0`, the only
// place an i32/i1 coercion happens. Values already i1 (the direct result of
// a comparison or logical operator) pass through unchanged.
func (g *Generator) toBool(v llvm.Value) llvm.Value {
	if v.Type().IntTypeWidth() == 1 {
		return v
	}
	return g.builder.CreateICmp(llvm.IntNE, v, llvm.ConstInt(g.ctx.Int32Type(), 0, true), "")
}

// -------------------------------
// ----- Expression lowering -----
// -------------------------------

func (g *Generator) genExpr(e frontend.Expression) (llvm.Value, error) {
	switch ex := e.(type) {
	case *frontend.NumberLit:
		return llvm.ConstInt(g.ctx.Int32Type(), uint64(uint32(ex.Value)), true), nil
	case *frontend.BoolLit:
		v := uint64(0)
		if ex.Value {
			v = 1
		}
		return llvm.ConstInt(g.ctx.Int1Type(), v, false), nil
	case *frontend.Var:
		return g.genLoad(ex.Name)
	case *frontend.BinOp:
		return g.genBinOp(ex)
	case *frontend.UnaryOp:
		return g.genUnaryOp(ex)
	case *frontend.Call:
		return g.genCall(ex)
	default:
		return llvm.Value{}, errors.New("code generator: unsupported expression type %T", e)
	}
}

func (g *Generator) genLoad(name string) (llvm.Value, error) {
	alloca, ok := g.namedValues[name]
	if !ok {
		return llvm.Value{}, errors.New("Unknown variable referenced: %s", name)
	}
	return g.builder.CreateLoad(alloca, name), nil
}

// genBinOp lowers every BinOp by its textual operator spelling. `&&`/`||`
// are plain bitwise and/or over whatever width their operands carry: this
// is intentionally non-short-circuiting, and both operands are always
// evaluated above before the switch runs.
func (g *Generator) genBinOp(b *frontend.BinOp) (llvm.Value, error) {
	left, err := g.genExpr(b.Left)
	if err != nil {
		return llvm.Value{}, err
	}
	right, err := g.genExpr(b.Right)
	if err != nil {
		return llvm.Value{}, err
	}

	switch b.Op {
	case "+":
		return g.builder.CreateAdd(left, right, ""), nil
	case "-":
		return g.builder.CreateSub(left, right, ""), nil
	case "*":
		return g.builder.CreateMul(left, right, ""), nil
	case "/":
		return g.builder.CreateSDiv(left, right, ""), nil
	case "==":
		return g.builder.CreateICmp(llvm.IntEQ, left, right, ""), nil
	case "!=":
		return g.builder.CreateICmp(llvm.IntNE, left, right, ""), nil
	case "<":
		return g.builder.CreateICmp(llvm.IntSLT, left, right, ""), nil
	case "<=":
		return g.builder.CreateICmp(llvm.IntSLE, left, right, ""), nil
	case ">":
		return g.builder.CreateICmp(llvm.IntSGT, left, right, ""), nil
	case ">=":
		return g.builder.CreateICmp(llvm.IntSGE, left, right, ""), nil
	case "&&":
		return g.builder.CreateAnd(left, right, ""), nil
	case "||":
		return g.builder.CreateOr(left, right, ""), nil
	default:
		return llvm.Value{}, errors.New("Unknown operator: %s", b.Op)
	}
}

// genUnaryOp lowers prefix `-` as a subtraction from zero and prefix `!` as
// a bitwise XOR against all-ones, both at the operand's own width (i1 or
// i32).
func (g *Generator) genUnaryOp(u *frontend.UnaryOp) (llvm.Value, error) {
	operand, err := g.genExpr(u.Operand)
	if err != nil {
		return llvm.Value{}, err
	}

	switch u.Op {
	case "-":
		zero := llvm.ConstInt(operand.Type(), 0, true)
		return g.builder.CreateSub(zero, operand, ""), nil
	case "!":
		ones := llvm.ConstInt(operand.Type(), ^uint64(0), false)
		return g.builder.CreateXor(ones, operand, ""), nil
	default:
		return llvm.Value{}, errors.New("Unknown operator: %s", u.Op)
	}
}

func (g *Generator) genCall(c *frontend.Call) (llvm.Value, error) {
	fn, ok := g.functions[c.Name]
	if !ok {
		return llvm.Value{}, errors.New("Unknown function referenced: %s", c.Name)
	}

	params := fn.Params()
	if len(params) != len(c.Args) {
		return llvm.Value{}, errors.New("Incorrect number of arguments: %s expects %d, got %d",
			c.Name, len(params), len(c.Args))
	}

	args := make([]llvm.Value, len(c.Args))
	for i1, a := range c.Args {
		v, err := g.genExpr(a)
		if err != nil {
			return llvm.Value{}, err
		}
		args[i1] = v
	}
	return g.builder.CreateCall(fn, args, ""), nil
}

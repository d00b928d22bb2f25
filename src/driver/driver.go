// Package driver orchestrates the SimpleLang pipeline — tokenize, parse,
// generate — and implements the CLI's dump/write/JIT actions: parse args,
// read source, run each stage in order, branch on the requested flags, and
// report the outcome.
package driver

import (
	"fmt"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"simplelang/src/frontend"
	llvmgen "simplelang/src/ir/llvm"
	"simplelang/src/util"
)

// Options holds one parsed invocation of the simplelang CLI.
type Options struct {
	Input  string
	Help   bool
	Tokens bool
	AST    bool
	IR     bool
	Output string
	Run    bool
}

// Usage is the usage text printed for -h/--help and on any argument error.
func Usage() string {
	return `Usage: simplelang [options] <input_file>
Options:
  -h, --help        Show this help message
  -t, --tokens      Print the token stream
  -a, --ast         Print AST (not implemented yet)
  -i, --ir          Print LLVM IR
  -o, --output      Specify output file for IR
  -r, --run         Compile and run with JIT`
}

// ParseArgs parses a flag-and-positional-argument slice (not including the
// program name) into Options: unknown flags and a dangling -o/--output are
// errors; a missing input file is an error only once the whole slice is
// consumed.
func ParseArgs(args []string) (Options, error) {
	var opt Options
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch a {
		case "-h", "--help":
			opt.Help = true
			return opt, nil
		case "-t", "--tokens":
			opt.Tokens = true
		case "-a", "--ast":
			opt.AST = true
		case "-i", "--ir":
			opt.IR = true
		case "-r", "--run":
			opt.Run = true
		case "-o", "--output":
			if i+1 >= len(args) {
				return Options{}, errors.New("%s requires an output filename", a)
			}
			i++
			opt.Output = args[i]
		default:
			if len(a) > 0 && a[0] == '-' {
				return Options{}, errors.New("unknown option %s", a)
			}
			opt.Input = a
		}
	}

	if !opt.Help && opt.Input == "" {
		return Options{}, errors.New("no input file specified")
	}
	return opt, nil
}

// Run executes the compilation pipeline described by opt: tokenize, parse,
// generate, then perform every requested action in order (tokens, AST
// placeholder, IR dump, IR write, JIT run); any number of these may combine
// in one invocation.
func Run(opt Options) error {
	src, err := util.ReadSource(opt.Input)
	if err != nil {
		return errors.Wrap(err, "driver: read source")
	}

	tokens := frontend.Tokenize(src)
	tlog.Printw("tokenize complete", "input", opt.Input, "tokens", len(tokens))

	if opt.Tokens {
		for _, t := range tokens {
			fmt.Println(t.String())
		}
	}

	prog, err := frontend.Parse(tokens)
	if err != nil {
		return errors.Wrap(err, "driver: parse")
	}
	tlog.Printw("parse complete", "input", opt.Input, "statements", len(prog.Stmts))

	if opt.AST {
		// Pretty-printing the tree is out of scope for now.
		fmt.Println("AST pretty-printing not implemented yet")
	}

	gen, err := llvmgen.Generate(prog)
	if err != nil {
		return errors.Wrap(err, "driver: generate")
	}
	defer gen.Close()
	tlog.Printw("code generation complete", "input", opt.Input)

	if opt.IR {
		ir, err := gen.DumpIR()
		if err != nil {
			return errors.Wrap(err, "driver: dump IR")
		}
		fmt.Println(ir)
	}

	if opt.Output != "" {
		if err := gen.WriteIRToFile(opt.Output); err != nil {
			return errors.Wrap(err, "driver: write IR")
		}
		tlog.Printw("IR written", "path", opt.Output)
	}

	if opt.Run {
		result, err := gen.ExecuteJIT()
		if err != nil {
			return errors.Wrap(err, "driver: run")
		}
		tlog.Printw("JIT run complete", "input", opt.Input, "result", result)
		fmt.Printf("Return value: %d\n", result)
	}

	return nil
}

// Main is the single entry point cmd/simplelang calls after parsing flags;
// it maps a nil error to exit code 0 and any other error to exit code 1,
// printing the error to stderr first. Argument errors also print Usage;
// pipeline errors carry their own stage name via the errors.Wrap chain.
func Main(args []string) int {
	opt, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, Usage())
		return 1
	}

	if opt.Help {
		fmt.Println(Usage())
		return 0
	}

	if err := Run(opt); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

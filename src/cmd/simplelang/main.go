// Command simplelang is the SimpleLang compiler's CLI front end. Flag
// parsing lives in driver.ParseArgs; this file only wires the process
// entry point.
package main

import (
	"os"

	"nikand.dev/go/cli"

	"simplelang/src/driver"
)

func main() {
	app := &cli.Command{
		Name:        "simplelang",
		Description: "simplelang compiles SimpleLang source to LLVM IR and can dump, write, or JIT-run it",
		Action:      run,
		Args:        cli.Args{},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func run(c *cli.Command) error {
	os.Exit(driver.Main(c.Args))
	return nil
}

// beamrt CLI - runs, assembles and inspects beamrt modules
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamrt <command> [options] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run     Start a process and schedule until every process exits\n")
		fmt.Fprintf(os.Stderr, "  asm     Assemble a .yaml module into a .bim image\n")
		fmt.Fprintf(os.Stderr, "  dis     Print a module file as linked assembly\n")
		fmt.Fprintf(os.Stderr, "  crash   Print a crash dump\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  beamrt run                     # Use beamrt.toml from this or a parent directory\n")
		fmt.Fprintf(os.Stderr, "  beamrt run -m hello -f main    # Run hello:main/0 from the code paths\n")
		fmt.Fprintf(os.Stderr, "  beamrt run -m fib -f main 20   # Pass immediate arguments\n")
		fmt.Fprintf(os.Stderr, "  beamrt asm hello.yaml          # Writes hello.bim\n")
		fmt.Fprintf(os.Stderr, "  beamrt dis hello.bim\n")
		fmt.Fprintf(os.Stderr, "\nRun 'beamrt <command> -h' for command options.\n")
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "run":
		var code int
		code, err = runCommand(args)
		if err == nil {
			os.Exit(code)
		}
	case "asm":
		err = asmCommand(args)
	case "dis":
		err = disCommand(args)
	case "crash":
		err = crashCommand(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

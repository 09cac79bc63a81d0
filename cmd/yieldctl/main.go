package main

import (
	"fmt"
	"io"
	"os"
)

const defaultPassEnv = "YIELDSPLIT_KEYSTORE_PASSPHRASE"

type command struct {
	name  string
	usage string
	run   func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"keygen", "generate an account keystore", runKeygen},
	{"address", "print the address stored in a keystore", runAddress},
	{"token", "issue a bearer token for yieldd", runToken},
	{"simulate", "replay a deposit and claim schedule against an in-memory engine", runSimulate},
	{"export", "export the yieldd event journal as csv or parquet", runExport},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return fmt.Errorf("command required")
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:], stdout)
		}
	}
	usage(os.Stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: yieldctl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.usage)
	}
}

// Command warscan visits a worklist of sites in a headless browser and
// records every attempt a page makes to detect installed extensions.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/output/exitcode"
)

func main() {
	os.Exit(int(run(os.Args[1:], os.Stdout, os.Stderr)))
}

func run(args []string, stdout, stderr io.Writer) exitcode.Code {
	if len(args) == 0 {
		printUsage(stderr)
		return exitcode.Usage
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stderr)
	case "split":
		return runSplit(args[1:], stdout, stderr)
	case "-v", "--version", "version":
		fmt.Fprintf(stdout, "%s %s\n", defaults.ToolName, defaults.Version)
		return exitcode.Success
	case "-h", "--help", "help":
		printUsage(stdout)
		return exitcode.Success
	default:
		if strings.HasPrefix(args[0], "-") {
			// Flags for the default scan command.
			return runScan(args, stderr)
		}
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitcode.Usage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%[1]s %[2]s

Usage:
  %[1]s scan -in FILE [flags]      scan a worklist (default command)
  %[1]s split -in FILE -n N [-chunk K] [-out DIR] [-prefix P]
                                  partition a worklist into N group files
  %[1]s version                   print the version

Run '%[1]s scan -h' for scan flags.
`, defaults.ToolName, defaults.Version)
}

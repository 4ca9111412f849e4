package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/output/exitcode"
	"github.com/warscan/warscan/pkg/worklist"
)

func runSplit(args []string, stdout, stderr io.Writer) exitcode.Code {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "Worklist file to split")
	groups := fs.Int("n", 0, "Number of group files")
	chunk := fs.Int("chunk", defaults.SplitChunkSize, "Consecutive entries dealt to a group at a time")
	out := fs.String("out", ".", "Output directory")
	prefix := fs.String("prefix", "extscan", "Group file name prefix")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcode.Success
		}
		return exitcode.Usage
	}
	if *in == "" {
		fmt.Fprintln(stderr, "split: -in is required")
		return exitcode.Usage
	}

	entries, err := worklist.ReadEntries(*in)
	if err != nil {
		fmt.Fprintln(stderr, "split:", err)
		return exitcode.Fatal
	}
	parts, err := worklist.Split(entries, *groups, *chunk)
	if err != nil {
		fmt.Fprintln(stderr, "split:", err)
		return exitcode.Usage
	}
	paths, err := worklist.WriteGroups(*out, *prefix, parts)
	if err != nil {
		fmt.Fprintln(stderr, "split:", err)
		return exitcode.Fatal
	}
	for i, p := range paths {
		fmt.Fprintf(stdout, "%s\t%d\n", p, len(parts[i]))
	}
	return exitcode.Success
}

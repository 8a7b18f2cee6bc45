package main

import (
	"fmt"
	"os"

	"github.com/brimdata/extsort/cmd/extsort/gen"
	"github.com/brimdata/extsort/cmd/extsort/root"
	"github.com/brimdata/extsort/pkg/charm"
)

func main() {
	extsort := root.Extsort
	extsort.Add(gen.Cmd)
	extsort.Add(charm.Help)
	if err := extsort.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

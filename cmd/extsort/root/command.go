package root

import (
	"flag"
	"os"
	"time"

	"github.com/alecthomas/units"
	"github.com/brimdata/extsort/cli"
	"github.com/brimdata/extsort/cli/logflags"
	"github.com/brimdata/extsort/cli/sortflags"
	"github.com/brimdata/extsort/pkg/charm"
	"github.com/brimdata/extsort/pkg/display"
	"github.com/brimdata/extsort/pkg/terminal"
	"github.com/brimdata/extsort/sorter"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var Extsort = &charm.Spec{
	Name:  "extsort",
	Usage: "extsort [options] source output budget",
	Short: "sort a file of numbered lines larger than memory",
	Long: `
extsort sorts a file of lines of the form "<integer>. <text>" by their integer
key.  The source is read in windows of budget bytes, each window is sorted in
memory and appended as a run to an intermediate file, and the runs are then
merged into the output.  Lines with equal keys keep the order of the runs
they came from.

The budget may be a plain byte count or carry a unit, as in 64MB or 1GiB.
Empty lines and lines without a "." are skipped.  A line whose key is not an
integer fails the sort.

The output is replaced only when the sort succeeds.  The intermediate file is
created in the output's directory unless -tmpdir is given and is removed when
the sort ends; with -keep it is left behind after a failure together with a
JSON file describing the failure.

Settings may also come from a YAML file given with -config whose keys match
the flag names plus "source", "output" and "budget".  Flags and arguments
override the file.`,
	New: New,
}

type Command struct {
	cli.Flags
	LogFlags  logflags.Flags
	sortFlags sortflags.Flags
	quiet     bool
	stats     bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.Flags.SetFlags(f)
	c.LogFlags.SetFlags(f)
	c.sortFlags.SetFlags(f)
	f.BoolVar(&c.quiet, "q", false, "don't display progress or the summary")
	f.BoolVar(&c.stats, "stats", false, "print sort metrics to stderr when done")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.sortFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.sortFlags.SetArgs(args); err != nil {
		if len(args) == 0 {
			return charm.NeedHelp
		}
		return err
	}
	logger, err := c.LogFlags.Open()
	if err != nil {
		return err
	}
	defer logger.Sync()
	for _, w := range c.sortFlags.Warnings() {
		logger.Warn(w)
	}
	s, err := sorter.New(logger, c.sortFlags.Config)
	if err != nil {
		return err
	}
	var d *display.Display
	if !c.quiet && terminal.IsTerminal(os.Stderr) {
		d = display.New(s.Progress(), time.Second/2, os.Stderr)
		go d.Run()
	}
	stats, err := s.Run(ctx)
	if d != nil {
		d.Close()
	}
	if err != nil {
		return err
	}
	if !c.quiet {
		p := message.NewPrinter(language.English)
		p.Fprintf(os.Stderr, "sorted %d records (%s read, %d runs, %d lines skipped) in %s\n",
			stats.Merged, units.Base2Bytes(stats.BytesRead), stats.Runs, stats.Skipped,
			(stats.BuildTime + stats.MergeTime).Round(time.Millisecond))
	}
	if c.stats {
		if err := s.Metrics().WriteText(os.Stderr); err != nil {
			logger.Warn("could not write metrics", zap.Error(err))
		}
	}
	return nil
}

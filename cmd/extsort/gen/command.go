package gen

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/alecthomas/units"
	"github.com/brimdata/extsort/cli/sortflags"
	"github.com/brimdata/extsort/cmd/extsort/root"
	"github.com/brimdata/extsort/gen"
	"github.com/brimdata/extsort/pkg/charm"
	"github.com/brimdata/extsort/pkg/display"
	"github.com/brimdata/extsort/pkg/terminal"
	"github.com/brimdata/extsort/record"
	"github.com/paulbellamy/ratecounter"
	"go.uber.org/zap"
)

var Cmd = &charm.Spec{
	Name:  "gen",
	Usage: "gen [options] path",
	Short: "write a file of random records",
	Long: `
The gen command writes random records of the form "<integer>. <word>" to path
until the file holds at least -size bytes.  Keys are drawn from the whole
64-bit signed range.  With -workers 1 the file is reproducible from -seed.`,
	New: New,
}

type Command struct {
	*root.Command
	size    string
	workers int
	seed    int64
	eol     string
	quiet   bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.StringVar(&c.size, "size", "1GiB", "minimum file size, e.g. 100MB")
	f.IntVar(&c.workers, "workers", 0, "number of generating goroutines (default GOMAXPROCS)")
	f.Int64Var(&c.seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&c.eol, "eol", "crlf", "line terminator (values: crlf, lf)")
	f.BoolVar(&c.quiet, "q", false, "don't display progress")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) != 1 {
		return errors.New("gen: a single output path must be specified")
	}
	size, err := sortflags.ParseSize(c.size)
	if err != nil {
		return err
	}
	codec, err := record.CodecFor(c.eol)
	if err != nil {
		return err
	}
	logger, err := c.LogFlags.Open()
	if err != nil {
		return err
	}
	defer logger.Sync()
	p := &progress{ctx: ctx, total: size, rate: ratecounter.NewRateCounter(time.Second)}
	var d *display.Display
	if !c.quiet && terminal.IsTerminal(os.Stderr) {
		d = display.New(p, time.Second/2, os.Stderr)
		go d.Run()
	}
	start := time.Now()
	n, err := gen.GenerateFile(ctx, args[0], gen.Options{
		Size:     size,
		Workers:  c.workers,
		Seed:     c.seed,
		Codec:    codec,
		Progress: p.written,
	})
	if d != nil {
		d.Close()
	}
	if err != nil {
		return err
	}
	logger.Info("source generated",
		zap.String("path", args[0]),
		zap.Int64("bytes", n),
		zap.Int64("seed", c.seed),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

type progress struct {
	ctx   context.Context
	total int64
	n     int64
	rate  *ratecounter.RateCounter
	last  int64
}

func (p *progress) written(n int64) {
	atomic.StoreInt64(&p.n, n)
}

func (p *progress) Display(w io.Writer) bool {
	n := atomic.LoadInt64(&p.n)
	p.rate.Incr(n - p.last)
	p.last = n
	fmt.Fprintf(w, "%s/%s %.2f%% %s/s\n", units.Base2Bytes(n), units.Base2Bytes(p.total),
		float64(n)/float64(p.total)*100, units.Base2Bytes(p.rate.Rate()))
	return p.ctx.Err() == nil && n < p.total
}

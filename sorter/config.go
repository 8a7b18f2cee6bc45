package sorter

import (
	"math"

	"github.com/brimdata/extsort/merge"
	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
)

const (
	// minRunBuffer is the derived per-run budget at or below which
	// defaultRunBuffer is used instead.
	minRunBuffer     = 1000
	defaultRunBuffer = 10000
)

type Config struct {
	Source string `yaml:"source"`
	Output string `yaml:"output"`
	// Budget is the number of source bytes sorted in memory per run.
	Budget int64 `yaml:"budget"`
	// RunBuffer is the number of bytes each run reader loads per refill.
	// Zero derives it from Budget and the number of runs.
	RunBuffer int64 `yaml:"runbuf"`
	Workers   int   `yaml:"workers"`
	// TempDir holds the intermediate file.  The default is the directory
	// of Output.
	TempDir string `yaml:"tmpdir"`
	EOL     string `yaml:"eol"`
	Merge   string `yaml:"merge"`
	// Keep leaves the intermediate file and a marker describing the
	// failure in place when a sort fails.
	Keep bool `yaml:"keep"`
}

type settings struct {
	codec    record.Codec
	strategy merge.Strategy
}

func (c Config) validate() (settings, error) {
	var s settings
	if c.Source == "" {
		return s, sorterr.E(sorterr.Invalid, "no source file")
	}
	if c.Output == "" {
		return s, sorterr.E(sorterr.Invalid, "no output file")
	}
	if c.Budget <= 0 || c.Budget > math.MaxInt32 {
		return s, sorterr.E(sorterr.Invalid, "budget must be between 1 and %d bytes: %d", math.MaxInt32, c.Budget)
	}
	if c.RunBuffer < 0 || c.RunBuffer > math.MaxInt32 {
		return s, sorterr.E(sorterr.Invalid, "run buffer must be between 0 and %d bytes: %d", math.MaxInt32, c.RunBuffer)
	}
	var err error
	if s.codec, err = record.CodecFor(c.EOL); err != nil {
		return s, err
	}
	if s.strategy, err = merge.ParseStrategy(c.Merge); err != nil {
		return s, err
	}
	return s, nil
}

// RunBuffer returns the per-run read budget for a sort of the given
// budget that produced runs runs.
func RunBuffer(budget int64, runs int) int {
	if runs < 1 {
		runs = 1
	}
	n := budget / int64(runs)
	if n <= minRunBuffer {
		return defaultRunBuffer
	}
	return int(n)
}

// Package sortflags binds the sorter configuration to command-line flags and
// an optional YAML file.
package sortflags

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/alecthomas/units"
	"github.com/brimdata/extsort/sorter"
	"github.com/brimdata/extsort/sorterr"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"
)

// file is the layout of the YAML configuration file.  Sizes are strings so
// they may carry units.
type file struct {
	Source    string `yaml:"source"`
	Output    string `yaml:"output"`
	Budget    string `yaml:"budget"`
	RunBuffer string `yaml:"runbuf"`
	Workers   int    `yaml:"workers"`
	TempDir   string `yaml:"tmpdir"`
	EOL       string `yaml:"eol"`
	Merge     string `yaml:"merge"`
	Keep      bool   `yaml:"keep"`
}

type Flags struct {
	Config sorter.Config

	flags      *flag.FlagSet
	configPath string
	runBuffer  string
	budget     string
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.flags = fs
	fs.StringVar(&f.configPath, "config", "", "read settings from YAML file (flags and arguments take precedence)")
	fs.StringVar(&f.runBuffer, "runbuf", "", "bytes each run reader loads per refill, e.g. 1MiB (default budget/runs)")
	fs.IntVar(&f.Config.Workers, "workers", runtime.GOMAXPROCS(0), "number of goroutines sorting windows and refilling runs")
	fs.StringVar(&f.Config.TempDir, "tmpdir", "", "directory for the intermediate file (default directory of output)")
	fs.StringVar(&f.Config.EOL, "eol", "crlf", "line terminator (values: crlf, lf)")
	fs.StringVar(&f.Config.Merge, "merge", "linear", "merge strategy (values: linear, heap)")
	fs.BoolVar(&f.Config.Keep, "keep", false, "keep the intermediate file and a failure marker if the sort fails")
}

func (f *Flags) Init() error {
	if f.configPath != "" {
		if err := f.load(f.configPath); err != nil {
			return err
		}
	}
	if f.runBuffer != "" {
		n, err := ParseSize(f.runBuffer)
		if err != nil {
			return err
		}
		f.Config.RunBuffer = n
	}
	return nil
}

// load applies the YAML file at path to every setting whose flag was not
// given on the command line.
func (f *Flags) load(path string) error {
	r, err := os.Open(path)
	if err != nil {
		return sorterr.E(sorterr.Invalid, err)
	}
	defer r.Close()
	var conf file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return sorterr.E(sorterr.Invalid, "%s: %w", path, err)
	}
	set := make(map[string]bool)
	if f.flags != nil {
		f.flags.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	}
	f.Config.Source = conf.Source
	f.Config.Output = conf.Output
	f.budget = conf.Budget
	if !set["runbuf"] && conf.RunBuffer != "" {
		f.runBuffer = conf.RunBuffer
	}
	if !set["workers"] && conf.Workers != 0 {
		f.Config.Workers = conf.Workers
	}
	if !set["tmpdir"] && conf.TempDir != "" {
		f.Config.TempDir = conf.TempDir
	}
	if !set["eol"] && conf.EOL != "" {
		f.Config.EOL = conf.EOL
	}
	if !set["merge"] && conf.Merge != "" {
		f.Config.Merge = conf.Merge
	}
	if !set["keep"] && conf.Keep {
		f.Config.Keep = true
	}
	return nil
}

// SetArgs applies the positional arguments "source output budget".  They
// may be omitted when the configuration file provides all three.
func (f *Flags) SetArgs(args []string) error {
	switch len(args) {
	case 3:
		f.Config.Source, f.Config.Output, f.budget = args[0], args[1], args[2]
	case 0:
		if f.Config.Source == "" || f.Config.Output == "" || f.budget == "" {
			return sorterr.E(sorterr.Invalid, "source, output and budget must be given")
		}
	default:
		return sorterr.E(sorterr.Invalid, "expected 3 arguments (source output budget), got %d", len(args))
	}
	n, err := ParseSize(f.budget)
	if err != nil {
		return err
	}
	f.Config.Budget = n
	return nil
}

// Warnings returns advisories about settings that are legal but likely to
// perform poorly.
func (f *Flags) Warnings() []string {
	var warnings []string
	if total := memory.TotalMemory(); total > 0 && uint64(f.Config.Budget) > total/2 {
		warnings = append(warnings, fmt.Sprintf("budget %s exceeds half of system memory (%s)",
			units.Base2Bytes(f.Config.Budget), units.Base2Bytes(total)))
	}
	if f.Config.Workers > 4*runtime.NumCPU() {
		warnings = append(warnings, fmt.Sprintf("%d workers on %d CPUs", f.Config.Workers, runtime.NumCPU()))
	}
	return warnings
}

// ParseSize parses a positive byte count given either as a plain integer or
// with a unit such as 64MB or 1GiB.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		n, err = units.ParseStrictBytes(s)
		if err != nil {
			return 0, sorterr.E(sorterr.Invalid, "bad size %q", s)
		}
	}
	if n <= 0 {
		return 0, sorterr.E(sorterr.Invalid, "size must be positive: %q", s)
	}
	return n, nil
}

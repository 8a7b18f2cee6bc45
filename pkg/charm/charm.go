// Package charm is a minimalist CLI framework inspired by cobra and
// urfave/cli.
package charm

import (
	"errors"
	"flag"
	"os"
)

var (
	// NeedHelp may be returned by a command's Run method to display the
	// command's help.
	NeedHelp = errors.New("help")
	// ErrNoRun is returned by a command that only dispatches to its
	// sub-commands.
	ErrNoRun = errors.New("no run method")
)

type Constructor func(Command, *flag.FlagSet) (Command, error)

type Command interface {
	Run([]string) error
}

type Spec struct {
	Name  string
	Usage string
	Short string
	Long  string
	New   Constructor
	// Hidden hides this command from help.
	Hidden bool
	// HiddenFlags (comma-separated) marks these flags as hidden.
	HiddenFlags string
	children    []*Spec
	parent      *Spec
}

func (s *Spec) Add(child *Spec) {
	s.children = append(s.children, child)
	child.parent = s
}

func (s *Spec) Root() *Spec {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (s *Spec) lookupSub(name string) *Spec {
	for _, child := range s.children {
		if name == child.Name {
			return child
		}
	}
	return nil
}

// ExecRoot parses args against s and its descendants, instantiates the
// selected command and runs it.  Help is written to stderr when the
// command asks for it.
func (s *Spec) ExecRoot(args []string) error {
	path, rest, err := parse(s, args)
	if err == nil {
		err = path.run(rest)
	}
	if err == NeedHelp {
		displayHelp(os.Stderr, path, false)
		return nil
	}
	return err
}

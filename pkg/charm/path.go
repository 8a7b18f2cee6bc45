package charm

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

type path []*instance

// parse instantiates the command named by the leading non-flag words of
// args and returns it, along with its ancestors, and the arguments left
// for it to run with.
func parse(spec *Spec, args []string) (path, []string, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, nil, err
		}
		p = append(p, inst)
		rest, err := inst.parseFlags(args)
		if err != nil {
			return p, nil, err
		}
		if len(rest) == 0 {
			return p, rest, nil
		}
		child := spec.lookupSub(rest[0])
		if child == nil {
			return p, rest, nil
		}
		spec, parent, args = child, inst.command, rest[1:]
	}
}

func (p path) run(args []string) error {
	err := p.last().command.Run(args)
	if err == ErrNoRun {
		if len(args) == 0 {
			return fmt.Errorf("%q: requires a sub-command: %s", p.pathname(), p.subCommands())
		}
		err = fmt.Errorf("%q: no such sub-command %q: options are: %s", p.pathname(), args[0], p.subCommands())
		if s := p.suggest(args[0]); s != "" {
			err = fmt.Errorf("%w (did you mean %q?)", err, s)
		}
	}
	return err
}

// maxSuggestDistance is the largest edit distance at which a sub-command
// is offered as a correction.
const maxSuggestDistance = 2

func (p path) suggest(name string) string {
	var best string
	dist := maxSuggestDistance + 1
	for _, spec := range p.last().spec.children {
		if spec.Hidden {
			continue
		}
		if d := levenshtein.ComputeDistance(name, spec.Name); d < dist {
			best, dist = spec.Name, d
		}
	}
	return best
}

func (p path) last() *instance {
	return p[len(p)-1]
}

func (p path) pathname(args ...string) string {
	names := make([]string, 0, len(p)+len(args))
	for _, sub := range p {
		names = append(names, sub.spec.Name)
	}
	names = append(names, args...)
	return strings.Join(names, " ")
}

func (p path) subCommands() string {
	names := make([]string, 0, len(p))
	for _, spec := range p.last().spec.children {
		names = append(names, spec.Name)
	}
	return strings.Join(names, " ")
}

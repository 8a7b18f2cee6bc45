package charm

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rootCommand struct {
	verbose bool
	ran     []string
}

func (c *rootCommand) Run(args []string) error {
	if len(args) == 0 {
		return NeedHelp
	}
	return ErrNoRun
}

type childCommand struct {
	root *rootCommand
	size int
}

func (c *childCommand) Run(args []string) error {
	c.root.ran = append(c.root.ran, args...)
	return nil
}

func newTree() (*Spec, *rootCommand, *int) {
	rc := &rootCommand{}
	var size int
	root := &Spec{
		Name:  "tool",
		Usage: "tool [options] command",
		Short: "a tool",
		Long:  "tool does things.",
		New: func(_ Command, f *flag.FlagSet) (Command, error) {
			f.BoolVar(&rc.verbose, "v", false, "be verbose")
			return rc, nil
		},
	}
	root.Add(&Spec{
		Name:  "generate",
		Usage: "generate [options] path",
		Short: "make a file",
		New: func(parent Command, f *flag.FlagSet) (Command, error) {
			c := &childCommand{root: parent.(*rootCommand)}
			f.IntVar(&c.size, "size", 10, "size of file")
			return &sizeRecorder{c, &size}, nil
		},
	})
	root.Add(&Spec{
		Name:   "secret",
		Short:  "hidden command",
		Hidden: true,
		New: func(parent Command, f *flag.FlagSet) (Command, error) {
			return &childCommand{root: parent.(*rootCommand)}, nil
		},
	})
	root.Add(Help)
	return root, rc, &size
}

type sizeRecorder struct {
	*childCommand
	size *int
}

func (s *sizeRecorder) Run(args []string) error {
	*s.size = s.childCommand.size
	return s.childCommand.Run(args)
}

func TestExecSubCommand(t *testing.T) {
	root, rc, size := newTree()
	require.NoError(t, root.ExecRoot([]string{"-v", "generate", "-size", "42", "out.txt"}))
	assert.True(t, rc.verbose)
	assert.Equal(t, 42, *size)
	assert.Equal(t, []string{"out.txt"}, rc.ran)
}

func TestUnknownSubCommandSuggests(t *testing.T) {
	root, _, _ := newTree()
	err := root.ExecRoot([]string{"generat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no such sub-command "generat"`)
	assert.Contains(t, err.Error(), `did you mean "generate"?`)

	err = root.ExecRoot([]string{"zzzzzzzzz"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestBadFlag(t *testing.T) {
	root, _, _ := newTree()
	err := root.ExecRoot([]string{"generate", "-nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate")
}

func TestHelpOutput(t *testing.T) {
	newTree()
	p, err := (&HelpCommand{}).search([]string{"generate"})
	require.NoError(t, err)
	var b bytes.Buffer
	displayHelp(&b, p, false)
	out := b.String()
	assert.Contains(t, out, "generate - make a file")
	assert.Contains(t, out, `-size size of file (default "10")`)
	assert.Contains(t, out, "[tool flags]")
	assert.Contains(t, out, "-v be verbose")

	p, err = (&HelpCommand{}).search(nil)
	require.NoError(t, err)
	b.Reset()
	displayHelp(&b, p, false)
	assert.Contains(t, b.String(), "generate - make a file")
	assert.NotContains(t, b.String(), "secret")

	_, err = (&HelpCommand{}).search([]string{"generate", "deeper"})
	assert.EqualError(t, err, "no such command: generate deeper")
}

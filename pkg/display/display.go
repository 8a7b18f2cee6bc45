// Package display redraws a status line in place on a terminal.
package display

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// Displayer writes the current status to w and returns false once there is
// nothing more to show.
type Displayer interface {
	Display(w io.Writer) bool
}

type Display struct {
	live     *uilive.Writer
	interval time.Duration
	updater  Displayer
	buffer   *bytes.Buffer
	close    chan struct{}
	once     sync.Once
	done     sync.WaitGroup
}

func New(updater Displayer, interval time.Duration, out io.Writer) *Display {
	live := uilive.New()
	live.Out = out
	d := &Display{
		live:     live,
		interval: interval,
		updater:  updater,
		buffer:   bytes.NewBuffer(nil),
		close:    make(chan struct{}),
	}
	d.done.Add(1)
	return d
}

func (d *Display) update() bool {
	d.buffer.Reset()
	cont := d.updater.Display(d.buffer)
	// Ignore any errors.
	_, _ = io.Copy(d.live, d.buffer)
	_ = d.live.Flush()
	return cont
}

// Run redraws the display every interval until Close is called or the
// Displayer reports it is finished.  It must be called exactly once.
func (d *Display) Run() {
	defer d.done.Done()
	for {
		if !d.update() {
			return
		}
		select {
		case <-d.close:
			return
		case <-time.After(d.interval):
		}
	}
}

// Bypass returns a writer whose output is not overwritten by updates.
func (d *Display) Bypass() io.Writer {
	return d.live.Bypass()
}

// Close stops Run and draws the final status.
func (d *Display) Close() {
	d.once.Do(func() { close(d.close) })
	d.done.Wait()
	d.update()
}

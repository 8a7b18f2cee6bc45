package display

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type counter struct {
	n    int32
	stop int32
}

func (c *counter) Display(w io.Writer) bool {
	n := atomic.AddInt32(&c.n, 1)
	fmt.Fprintf(w, "update %d\n", n)
	return n < c.stop
}

func TestDisplayStopsWhenFinished(t *testing.T) {
	var out bytes.Buffer
	c := &counter{stop: 3}
	d := New(c, time.Millisecond, &out)
	d.Run()
	assert.Equal(t, int32(3), atomic.LoadInt32(&c.n))
	d.Close()
	assert.Contains(t, out.String(), "update 4")
}

func TestDisplayClose(t *testing.T) {
	var out bytes.Buffer
	c := &counter{stop: 1 << 30}
	d := New(c, time.Millisecond, &out)
	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	d.Close()
	<-done
	assert.True(t, strings.HasPrefix(out.String(), "update 1"))
}

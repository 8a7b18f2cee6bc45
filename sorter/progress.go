package sorter

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/alecthomas/units"
	"github.com/paulbellamy/ratecounter"
)

type stage int32

const (
	stageIdle stage = iota
	stageBuild
	stageMerge
	stageDone
)

// Progress tracks a running sort.  The sort updates it through atomic
// counters while a display.Display renders it from another goroutine.
type Progress struct {
	stage   int32
	total   int64
	read    int64
	runs    int64
	records int64
	merged  int64

	rate *ratecounter.RateCounter
	last int64
}

func newProgress() *Progress {
	return &Progress{rate: ratecounter.NewRateCounter(time.Second)}
}

func (p *Progress) setStage(s stage) {
	atomic.StoreInt32(&p.stage, int32(s))
}

func (p *Progress) startBuild(total int64) {
	atomic.StoreInt64(&p.total, total)
	p.setStage(stageBuild)
}

func (p *Progress) startMerge(runs int, records int64) {
	atomic.StoreInt64(&p.runs, int64(runs))
	atomic.StoreInt64(&p.records, records)
	p.setStage(stageMerge)
}

func (p *Progress) bytesRead(n int64) {
	atomic.StoreInt64(&p.read, n)
}

func (p *Progress) recordsMerged(n int64) {
	atomic.StoreInt64(&p.merged, n)
}

// Display implements display.Displayer.
//
//	building runs: 120MiB/1GiB 11.72% 95MiB/s
//	merging 16 runs: 400000/9000000 records 4.44% 380000/s
func (p *Progress) Display(w io.Writer) bool {
	switch stage(atomic.LoadInt32(&p.stage)) {
	case stageBuild:
		read, total := atomic.LoadInt64(&p.read), atomic.LoadInt64(&p.total)
		rate := units.Base2Bytes(p.incrRate(read))
		fmt.Fprintf(w, "building runs: %s/%s %s %s/s\n", units.Base2Bytes(read), units.Base2Bytes(total), percent(read, total), rate)
	case stageMerge:
		merged, records := atomic.LoadInt64(&p.merged), atomic.LoadInt64(&p.records)
		rate := p.incrRate(merged)
		fmt.Fprintf(w, "merging %d runs: %d/%d records %s %d/s\n", atomic.LoadInt64(&p.runs), merged, records, percent(merged, records), rate)
	case stageDone:
		return false
	}
	return true
}

// incrRate feeds the change in n since the last call to the rate counter.
// Switching stages resets n, which restarts the count.
func (p *Progress) incrRate(n int64) int64 {
	if n < p.last {
		p.last = 0
	}
	p.rate.Incr(n - p.last)
	p.last = n
	return p.rate.Rate()
}

func percent(n, total int64) string {
	if total == 0 {
		return "100.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(n)/float64(total)*100)
}

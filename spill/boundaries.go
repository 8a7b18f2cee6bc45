package spill

import (
	"fmt"

	"github.com/brimdata/extsort/sorterr"
)

// Boundaries lists the byte offsets that delimit the runs of an intermediate
// file.  Run i occupies [b[i], b[i+1]).
type Boundaries []int64

// Runs returns the number of runs delimited by b.
func (b Boundaries) Runs() int {
	if len(b) == 0 {
		return 0
	}
	return len(b) - 1
}

// Interval returns the half-open byte range of run i.
func (b Boundaries) Interval(i int) (int64, int64) {
	return b[i], b[i+1]
}

// Validate checks that b starts at zero, increases strictly, and ends at
// size, the length of the intermediate file.
func (b Boundaries) Validate(size int64) error {
	if len(b) == 0 || b[0] != 0 {
		return sorterr.E(sorterr.Invalid, "run boundaries must start at 0")
	}
	for i := 1; i < len(b); i++ {
		if b[i] <= b[i-1] {
			return sorterr.E(sorterr.Invalid, "run boundary %d (%d) does not follow %d", i, b[i], b[i-1])
		}
	}
	if last := b[len(b)-1]; last != size {
		return sorterr.E(sorterr.Invalid, "last run boundary %d does not match file size %d", last, size)
	}
	return nil
}

func (b Boundaries) String() string {
	return fmt.Sprint([]int64(b))
}

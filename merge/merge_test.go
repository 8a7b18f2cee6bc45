package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/brimdata/extsort/merge/mock"
	"github.com/brimdata/extsort/record"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	recs   []record.Record
	closed int
}

func (s *sliceSource) Peek(context.Context) (record.Record, bool, error) {
	if len(s.recs) == 0 {
		return record.Record{}, false, nil
	}
	return s.recs[0], true, nil
}

func (s *sliceSource) Dequeue(context.Context) (record.Record, bool, error) {
	if len(s.recs) == 0 {
		return record.Record{}, false, nil
	}
	rec := s.recs[0]
	s.recs = s.recs[1:]
	return rec, true, nil
}

func (s *sliceSource) Close() error {
	s.closed++
	return nil
}

func sources(runs ...[]record.Record) ([]Source, []*sliceSource) {
	var out []Source
	var fakes []*sliceSource
	for _, run := range runs {
		s := &sliceSource{recs: append([]record.Record(nil), run...)}
		out = append(out, s)
		fakes = append(fakes, s)
	}
	return out, fakes
}

func merge(t *testing.T, strategy Strategy, runs ...[]record.Record) string {
	srcs, fakes := sources(runs...)
	var b bytes.Buffer
	n, err := Merge(context.Background(), srcs, &b, Options{Strategy: strategy})
	require.NoError(t, err)
	for _, f := range fakes {
		assert.Equal(t, 1, f.closed)
	}
	var want int64
	for _, run := range runs {
		want += int64(len(run))
	}
	assert.Equal(t, want, n)
	return b.String()
}

func TestMergeSmall(t *testing.T) {
	runs := [][]record.Record{
		{{Key: 1, Text: "apple"}, {Key: 5, Text: "fox"}},
		{{Key: 2, Text: "banana"}, {Key: 3, Text: "cherry"}},
	}
	const want = "1. apple\r\n2. banana\r\n3. cherry\r\n5. fox\r\n"
	for _, s := range []Strategy{Linear, Heap} {
		t.Run(s.String(), func(t *testing.T) {
			assert.Equal(t, want, merge(t, s, runs...))
		})
	}
}

func TestMergeTiesPreferEarliestSource(t *testing.T) {
	runs := [][]record.Record{
		{{Key: 1, Text: "first"}, {Key: 7, Text: "x"}},
		{{Key: 1, Text: "second"}},
		{{Key: 1, Text: "third"}, {Key: 7, Text: "y"}},
	}
	const want = "1. first\r\n1. second\r\n1. third\r\n7. x\r\n7. y\r\n"
	for _, s := range []Strategy{Linear, Heap} {
		t.Run(s.String(), func(t *testing.T) {
			assert.Equal(t, want, merge(t, s, runs...))
		})
	}
}

func TestMergeEmpty(t *testing.T) {
	assert.Equal(t, "", merge(t, Linear))
	assert.Equal(t, "", merge(t, Heap, nil, nil))
	assert.Equal(t, "", merge(t, Linear, nil, nil, nil))
}

func TestMergeLF(t *testing.T) {
	srcs, _ := sources([]record.Record{{Key: -3, Text: "neg"}}, []record.Record{{Key: 0}})
	var b bytes.Buffer
	_, err := Merge(context.Background(), srcs, &b, Options{Codec: record.LF})
	require.NoError(t, err)
	assert.Equal(t, "-3. neg\n0. \n", b.String())
}

func randomRuns(rng *rand.Rand, k, n int) [][]record.Record {
	runs := make([][]record.Record, k)
	for i := range runs {
		for j := rng.Intn(n); j > 0; j-- {
			runs[i] = append(runs[i], record.Record{
				Key:  rng.Int63n(100) - 50,
				Text: fmt.Sprintf("r%d", i),
			})
		}
		sort.SliceStable(runs[i], func(a, b int) bool { return runs[i][a].Key < runs[i][b].Key })
	}
	return runs
}

func TestMergeStrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		runs := randomRuns(rng, 1+rng.Intn(12), 200)
		linear := merge(t, Linear, runs...)
		heap := merge(t, Heap, runs...)
		require.Equal(t, linear, heap)
		var keys []int64
		record.CRLF.Lines([]byte(linear), func(line []byte, _ int) bool {
			rec, ok, err := record.CRLF.Decode(line)
			require.NoError(t, err)
			require.True(t, ok)
			keys = append(keys, rec.Key)
			return true
		})
		assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
	}
}

func TestMergeSourceError(t *testing.T) {
	boom := errors.New("boom")
	for _, s := range []Strategy{Linear, Heap} {
		t.Run(s.String(), func(t *testing.T) {
			failing := mock.NewMockSource(gomock.NewController(t))
			failing.EXPECT().Peek(gomock.Any()).Return(record.Record{}, false, boom)
			failing.EXPECT().Close().Return(nil)
			good := &sliceSource{recs: []record.Record{{Key: 1, Text: "a"}}}
			var b bytes.Buffer
			_, err := Merge(context.Background(), []Source{good, failing}, &b, Options{Strategy: s})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, 1, good.closed)
			assert.Empty(t, b.String())
		})
	}
}

func TestMergeCloseError(t *testing.T) {
	closeErr := errors.New("close failed")
	src := mock.NewMockSource(gomock.NewController(t))
	src.EXPECT().Peek(gomock.Any()).Return(record.Record{}, false, nil)
	src.EXPECT().Close().Return(closeErr)
	_, err := Merge(context.Background(), []Source{src}, &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, err, closeErr)
}

func TestMergeCanceled(t *testing.T) {
	run := make([]record.Record, 2*progressInterval)
	for i := range run {
		run[i].Key = int64(i)
	}
	srcs, fakes := sources(run)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Merge(ctx, srcs, &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(progressInterval), n)
	assert.Equal(t, 1, fakes[0].closed)
}

func TestMergeMetrics(t *testing.T) {
	runs := randomRuns(rand.New(rand.NewSource(5)), 4, 3000)
	var want int64
	for _, run := range runs {
		want += int64(len(run))
	}
	srcs, _ := sources(runs...)
	merged := prometheus.NewCounter(prometheus.CounterOpts{Name: "merged"})
	var last int64
	n, err := Merge(context.Background(), srcs, &bytes.Buffer{}, Options{
		Strategy: Heap,
		Merged:   merged,
		Progress: func(n int64) { last = n },
	})
	require.NoError(t, err)
	assert.Equal(t, want, n)
	assert.Equal(t, want, last)
	assert.Equal(t, float64(want), testutil.ToFloat64(merged))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("heap")
	require.NoError(t, err)
	assert.Equal(t, Heap, s)
	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Linear, s)
	_, err = ParseStrategy("bubble")
	assert.Error(t, err)
}

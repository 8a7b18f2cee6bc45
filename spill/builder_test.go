package spill

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const fruit = "5. fox\r\n1. apple\r\n3. cherry\r\n2. banana\r\n"

func writeSource(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "source.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func build(t *testing.T, content string, opts BuildOptions) (Boundaries, *BuildStats, string) {
	src := writeSource(t, content)
	dst := filepath.Join(t.TempDir(), "runs.txt")
	bounds, stats, err := Build(context.Background(), zaptest.NewLogger(t), src, dst, opts)
	require.NoError(t, err)
	size, err := os.Stat(dst)
	require.NoError(t, err)
	require.NoError(t, bounds.Validate(size.Size()))
	return bounds, stats, dst
}

func runs(t *testing.T, path string, bounds Boundaries) []string {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []string
	for i := 0; i < bounds.Runs(); i++ {
		start, end := bounds.Interval(i)
		out = append(out, string(b[start:end]))
	}
	return out
}

func TestBuildSingleRun(t *testing.T) {
	bounds, stats, dst := build(t, fruit, BuildOptions{Window: 1024})
	assert.Equal(t, Boundaries{0, int64(len(fruit))}, bounds)
	assert.Equal(t, []string{"1. apple\r\n2. banana\r\n3. cherry\r\n5. fox\r\n"}, runs(t, dst, bounds))
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, int64(4), stats.Records)
	assert.Equal(t, int64(len(fruit)), stats.BytesRead)
	assert.InDelta(t, 4, float64(stats.DistinctKeys), 1)
}

func TestBuildTwoRuns(t *testing.T) {
	bounds, _, dst := build(t, fruit, BuildOptions{Window: 22})
	assert.Equal(t, Boundaries{0, 18, 40}, bounds)
	assert.Equal(t, []string{
		"1. apple\r\n5. fox\r\n",
		"2. banana\r\n3. cherry\r\n",
	}, runs(t, dst, bounds))
}

func TestBuildEmpty(t *testing.T) {
	bounds, stats, _ := build(t, "", BuildOptions{Window: 64})
	assert.Equal(t, Boundaries{0}, bounds)
	assert.Zero(t, bounds.Runs())
	assert.Zero(t, stats.Records)
}

func TestBuildSkippedLines(t *testing.T) {
	content := "\r\n\r\nnoise\r\n\r\n2. b\r\n1. a\r\n"
	// The first window holds only skippable lines and must not produce an
	// empty run.
	bounds, stats, dst := build(t, content, BuildOptions{Window: 13})
	assert.Equal(t, int64(4), stats.Skipped)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, Boundaries{0, 12}, bounds)
	assert.Equal(t, []string{"1. a\r\n2. b\r\n"}, runs(t, dst, bounds))
}

func TestBuildUnterminatedFinalLine(t *testing.T) {
	bounds, stats, dst := build(t, "9. last\r\n4. tail", BuildOptions{Window: 1024})
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, []string{"4. tail\r\n9. last\r\n"}, runs(t, dst, bounds))
}

func TestBuildLineLongerThanWindow(t *testing.T) {
	long := strings.Repeat("x", 100)
	content := "3. " + long + "\r\n1. short\r\n"
	bounds, stats, dst := build(t, content, BuildOptions{Window: 8})
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, []string{"1. short\r\n3. " + long + "\r\n"}, runs(t, dst, bounds))
}

func TestBuildLineTooLong(t *testing.T) {
	src := writeSource(t, "1. "+strings.Repeat("x", 100)+"\r\n")
	dst := filepath.Join(t.TempDir(), "runs.txt")
	_, _, err := Build(context.Background(), zaptest.NewLogger(t), src, dst, BuildOptions{Window: 8, MaxLine: 32})
	require.Error(t, err)
	assert.True(t, sorterr.IsKind(err, sorterr.LineTooLong), err.Error())
}

func TestBuildMalformedKey(t *testing.T) {
	src := writeSource(t, "1. ok\r\nseven. bad\r\n")
	dst := filepath.Join(t.TempDir(), "runs.txt")
	_, _, err := Build(context.Background(), zaptest.NewLogger(t), src, dst, BuildOptions{Window: 1024})
	require.Error(t, err)
	assert.True(t, sorterr.IsKind(err, sorterr.MalformedKey))
	assert.Contains(t, err.Error(), "source offset 7")
}

func TestBuildMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "runs.txt")
	_, _, err := Build(context.Background(), zaptest.NewLogger(t), filepath.Join(t.TempDir(), "nope"), dst, BuildOptions{Window: 16})
	assert.True(t, sorterr.IsKind(err, sorterr.IO))
}

func TestBuildCanceled(t *testing.T) {
	src := writeSource(t, fruit)
	dst := filepath.Join(t.TempDir(), "runs.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Build(ctx, zaptest.NewLogger(t), src, dst, BuildOptions{Window: 16})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildLF(t *testing.T) {
	content := "5. fox\n1. apple\n3. cherry\n2. banana\n"
	bounds, _, dst := build(t, content, BuildOptions{Window: 1024, Codec: record.LF})
	assert.Equal(t, []string{"1. apple\n2. banana\n3. cherry\n5. fox\n"}, runs(t, dst, bounds))
}

func TestBuildRunsAreSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var b strings.Builder
	const n = 3000
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d. word%d\r\n", rng.Int63()-rng.Int63(), i)
	}
	for _, workers := range []int{1, 4} {
		bounds, stats, dst := build(t, b.String(), BuildOptions{Window: 4096, Workers: workers})
		assert.Greater(t, bounds.Runs(), 10)
		assert.Equal(t, int64(n), stats.Records)
		var total int
		for _, run := range runs(t, dst, bounds) {
			keys := keysOf(t, run)
			total += len(keys)
			assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
		}
		assert.Equal(t, n, total)
	}
}

func TestBuildParallelSortLargeWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var b strings.Builder
	n := parallelSortMin * 2
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d. w\r\n", rng.Intn(1000))
	}
	bounds, stats, dst := build(t, b.String(), BuildOptions{Window: b.Len(), Workers: 3})
	require.Equal(t, 1, bounds.Runs())
	keys := keysOf(t, runs(t, dst, bounds)[0])
	require.Len(t, keys, n)
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
	assert.InDelta(t, 1000, float64(stats.DistinctKeys), 50)
}

func TestSegments(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 10}}, segments(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, segments(2, 5))
}

func keysOf(t *testing.T, run string) []int64 {
	var keys []int64
	record.CRLF.Lines([]byte(run), func(line []byte, _ int) bool {
		rec, ok, err := record.CRLF.Decode(line)
		require.NoError(t, err)
		require.True(t, ok)
		keys = append(keys, rec.Key)
		return true
	})
	return keys
}

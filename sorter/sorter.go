// Package sorter runs an external sort: it splits the source into sorted
// runs on disk and merges the runs into the output.
package sorter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/brimdata/extsort/merge"
	"github.com/brimdata/extsort/pkg/bufpool"
	"github.com/brimdata/extsort/pkg/fs"
	"github.com/brimdata/extsort/pkg/rlimit"
	"github.com/brimdata/extsort/pkg/workers"
	"github.com/brimdata/extsort/sorterr"
	"github.com/brimdata/extsort/spill"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// minPoolBuffer is the smallest buffer class kept by the shared pool.
const minPoolBuffer = 4096

type Stats struct {
	Runs         int           `json:"runs"`
	Records      int64         `json:"records"`
	Skipped      int64         `json:"skipped"`
	Merged       int64         `json:"merged"`
	DistinctKeys uint64        `json:"distinct_keys"`
	BytesRead    int64         `json:"bytes_read"`
	RunBuffer    int           `json:"run_buffer"`
	BuildTime    time.Duration `json:"build_time"`
	MergeTime    time.Duration `json:"merge_time"`
}

// Incomplete is the marker written next to an intermediate file that was
// kept after a failed sort.
type Incomplete struct {
	Error      string  `json:"error"`
	Stage      string  `json:"stage"`
	Source     string  `json:"source"`
	Boundaries []int64 `json:"boundaries"`
}

type Sorter struct {
	logger   *zap.Logger
	conf     Config
	settings settings
	metrics  *Metrics
	progress *Progress
}

func New(logger *zap.Logger, conf Config) (*Sorter, error) {
	s, err := conf.validate()
	if err != nil {
		return nil, err
	}
	return &Sorter{
		logger:   logger,
		conf:     conf,
		settings: s,
		metrics:  NewMetrics(),
		progress: newProgress(),
	}, nil
}

func (s *Sorter) Metrics() *Metrics {
	return s.metrics
}

func (s *Sorter) Progress() *Progress {
	return s.progress
}

// RunFile returns the path for a new intermediate file.
func (s *Sorter) RunFile() string {
	dir := s.conf.TempDir
	if dir == "" {
		dir = filepath.Dir(s.conf.Output)
	}
	return filepath.Join(dir, "sorted_chunks-"+ksuid.New().String()+".txt")
}

// Run sorts the source into the output.  The output is replaced only if the
// sort succeeds.  The intermediate file is removed unless the sort fails
// with Config.Keep set.
func (s *Sorter) Run(ctx context.Context) (*Stats, error) {
	defer s.progress.setStage(stageDone)
	if n, err := rlimit.RaiseOpenFilesLimit(); err != nil {
		s.logger.Warn("could not raise open files limit", zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("open files limit", zap.Int("limit", n))
	}
	size, err := fs.Size(s.conf.Source)
	if err != nil {
		return nil, sorterr.E(sorterr.IO, err)
	}
	runFile := s.RunFile()
	s.logger.Info("sort started",
		zap.String("source", s.conf.Source),
		zap.String("output", s.conf.Output),
		zap.String("run_file", runFile),
		zap.Int64("source_bytes", size),
		zap.Int64("budget", s.conf.Budget))
	maxBuffer := int(s.conf.Budget)
	if int(s.conf.RunBuffer) > maxBuffer {
		maxBuffer = int(s.conf.RunBuffer)
	}
	pool := bufpool.New(minPoolBuffer, maxBuffer)

	s.progress.startBuild(size)
	start := time.Now()
	bounds, bstats, err := spill.Build(ctx, s.logger, s.conf.Source, runFile, spill.BuildOptions{
		Codec:    s.settings.codec,
		Window:   int(s.conf.Budget),
		Workers:  s.conf.Workers,
		Pool:     pool,
		Progress: s.progress.bytesRead,
	})
	if err != nil {
		return nil, s.fail(runFile, "build", nil, err)
	}
	stats := &Stats{
		Runs:         bstats.Runs,
		Records:      bstats.Records,
		Skipped:      bstats.Skipped,
		DistinctKeys: bstats.DistinctKeys,
		BytesRead:    bstats.BytesRead,
		BuildTime:    time.Since(start),
	}
	s.metrics.Runs.Add(float64(bstats.Runs))
	s.metrics.Records.Add(float64(bstats.Records))
	s.metrics.Skipped.Add(float64(bstats.Skipped))
	s.metrics.DistinctKeys.Set(float64(bstats.DistinctKeys))
	s.metrics.Seconds.WithLabelValues("build").Set(stats.BuildTime.Seconds())

	stats.RunBuffer = int(s.conf.RunBuffer)
	if stats.RunBuffer == 0 {
		stats.RunBuffer = RunBuffer(s.conf.Budget, bounds.Runs())
	}
	s.progress.startMerge(bounds.Runs(), bstats.Records)
	start = time.Now()
	stats.Merged, err = s.merge(ctx, runFile, bounds, stats.RunBuffer, pool)
	if err != nil {
		return nil, s.fail(runFile, "merge", bounds, err)
	}
	stats.MergeTime = time.Since(start)
	s.metrics.Seconds.WithLabelValues("merge").Set(stats.MergeTime.Seconds())
	if err := os.Remove(runFile); err != nil {
		s.logger.Warn("could not remove intermediate file", zap.String("path", runFile), zap.Error(err))
	}
	s.logger.Info("sort finished",
		zap.Int("runs", stats.Runs),
		zap.Int64("records", stats.Merged),
		zap.Int("run_buffer", stats.RunBuffer),
		zap.Duration("build", stats.BuildTime),
		zap.Duration("merge", stats.MergeTime))
	return stats, nil
}

func (s *Sorter) merge(ctx context.Context, runFile string, bounds spill.Boundaries, runBuffer int, pool *bufpool.Pool) (int64, error) {
	refills := workers.New(s.conf.Workers)
	sources := make([]merge.Source, 0, bounds.Runs())
	for i := 0; i < bounds.Runs(); i++ {
		start, end := bounds.Interval(i)
		r, err := spill.NewReader(ctx, runFile, start, end, spill.ReaderOptions{
			Codec:   s.settings.codec,
			Budget:  runBuffer,
			Pool:    pool,
			Workers: refills,
			Refills: s.metrics.Refills,
		})
		if err != nil {
			for _, src := range sources {
				err = multierr.Append(err, src.Close())
			}
			return 0, err
		}
		sources = append(sources, r)
	}
	s.logger.Debug("run readers open", zap.Int("runs", len(sources)), zap.Int("run_buffer", runBuffer))
	out, err := fs.NewFileReplacer(s.conf.Output, 0644)
	if err != nil {
		for _, src := range sources {
			err = multierr.Append(err, src.Close())
		}
		return 0, sorterr.E(sorterr.IO, err)
	}
	n, err := merge.Merge(ctx, sources, out, merge.Options{
		Codec:    s.settings.codec,
		Strategy: s.settings.strategy,
		Progress: s.progress.recordsMerged,
		Merged:   s.metrics.Merged,
	})
	if err != nil {
		out.Abort()
		return n, err
	}
	if err := out.Close(); err != nil {
		return n, sorterr.E(sorterr.IO, err)
	}
	return n, nil
}

// fail cleans up after a sort that failed in stage and returns err.
func (s *Sorter) fail(runFile, stage string, bounds spill.Boundaries, err error) error {
	s.logger.Error("sort failed", zap.String("stage", stage), zap.Error(err))
	if !s.conf.Keep {
		if rmErr := os.Remove(runFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
		return err
	}
	marker := runFile + ".incomplete.json"
	info := Incomplete{
		Error:      err.Error(),
		Stage:      stage,
		Source:     s.conf.Source,
		Boundaries: bounds,
	}
	if mErr := fs.MarshalJSONFile(info, marker, 0644); mErr != nil {
		return multierr.Append(err, mErr)
	}
	s.logger.Warn("intermediate file kept", zap.String("path", runFile), zap.String("marker", marker))
	return err
}

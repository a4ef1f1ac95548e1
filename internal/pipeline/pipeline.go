// Package pipeline wires the conversion stages together: parse, correlate,
// classify, optionally enrich, filter against prior output, and write the
// partitioned columnar files.
//
// The pipeline is a single-threaded pull loop. Correctness depends on the
// strict key order of the merge-join and on single sequential access to
// each file; the only concurrency is the flag-gated batch enrichment,
// whose output order is deterministic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"polyconv/internal/classify"
	"polyconv/internal/correlate"
	"polyconv/internal/derive"
	"polyconv/internal/pqcol"
	"polyconv/internal/record"
	"polyconv/internal/resume"
	"polyconv/internal/textio"
)

// ErrMalformedLimit is returned when the number of malformed input lines
// exceeds the configured tolerance.
var ErrMalformedLimit = errors.New("too many malformed records")

// Config is the full configuration surface of one conversion run.
type Config struct {
	// WeightSystemPath and PolytopeInfoPath are the two input streams,
	// both sorted ascending by key. Either may be gzip/zstd/lz4
	// compressed.
	WeightSystemPath string
	PolytopeInfoPath string

	// Outputs names the three partition files, one per class.
	Outputs pqcol.Paths

	// Priors optionally name a previous run's outputs. Keys found there
	// are skipped, making re-runs idempotent. Empty paths start fresh.
	Priors pqcol.Paths

	// IncludeDerived enables the derived-quantity enricher and its
	// optional output columns.
	IncludeDerived bool

	// Limit caps the number of correlated records processed. 0 means
	// unlimited. Buffered records are still flushed when the limit hits.
	Limit uint64

	// RowGroupSize overrides the writer's row group bound when positive.
	RowGroupSize int

	// MalformedLimit is the number of malformed input lines tolerated
	// before the run aborts. Malformed lines below the limit are skipped
	// and counted.
	MalformedLimit uint64

	// EnrichWorkers is the goroutine count for batch enrichment. Values
	// below 2 keep enrichment on the pipeline goroutine.
	EnrichWorkers int

	// EnrichBatchSize is the number of records enriched per batch when
	// EnrichWorkers exceeds 1.
	EnrichBatchSize int

	// Logger receives progress and summary output. nil uses slog.Default.
	Logger *slog.Logger
}

// Stats are the run-level counters. They are returned by Run, never held
// in package state, so the pipeline stays testable without a live process.
type Stats struct {
	WeightSystemsRead uint64
	PolytopeInfosRead uint64
	Correlated        uint64

	NonIP        uint64
	NonReflexive uint64
	Reflexive    uint64

	Gaps           uint64
	DanglingInfos  uint64
	Malformed      uint64
	ResumeSkipped  uint64
	DeriveFailures uint64

	Written      uint64
	LimitReached bool
	Elapsed      time.Duration
}

// classCount returns a pointer to the per-class counter.
func (s *Stats) classCount(class record.Class) *uint64 {
	switch class {
	case record.NonInteriorPoint:
		return &s.NonIP
	case record.NonReflexive:
		return &s.NonReflexive
	default:
		return &s.Reflexive
	}
}

// LogSummary reports all counters through the logger. Called on both the
// success and the abort path, so a user can tell a clean run with gaps
// from an aborted one.
func (s *Stats) LogSummary(logger *slog.Logger, err error) {
	attrs := []any{
		"weight_systems_read", s.WeightSystemsRead,
		"polytope_infos_read", s.PolytopeInfosRead,
		"correlated", s.Correlated,
		"non_ip", s.NonIP,
		"non_reflexive", s.NonReflexive,
		"reflexive", s.Reflexive,
		"gaps", s.Gaps,
		"dangling_infos", s.DanglingInfos,
		"malformed", s.Malformed,
		"resume_skipped", s.ResumeSkipped,
		"derive_failures", s.DeriveFailures,
		"written", s.Written,
		"limit_reached", s.LimitReached,
		"elapsed", s.Elapsed.String(),
	}
	if err != nil {
		logger.Error("conversion aborted", append(attrs, "error", err)...)
		return
	}
	logger.Info("conversion finished", attrs...)
}

const defaultEnrichBatchSize = 4096

// Run executes one conversion. The returned Stats are valid even when err
// is non-nil: fatal errors flush whatever was buffered first, so partial
// progress is never silently lost.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.WeightSystemPath == "" || cfg.PolytopeInfoPath == "" {
		return &Stats{}, errors.New("both input paths are required")
	}
	if cfg.Outputs.NonIP == "" || cfg.Outputs.NonReflexive == "" || cfg.Outputs.Reflexive == "" {
		return &Stats{}, errors.New("all three output paths are required")
	}

	start := time.Now()
	stats := &Stats{}

	wsSrc, err := textio.Open(cfg.WeightSystemPath)
	if err != nil {
		return stats, err
	}
	defer wsSrc.Close()

	infoSrc, err := textio.Open(cfg.PolytopeInfoPath)
	if err != nil {
		return stats, err
	}
	defer infoSrc.Close()

	filter := resume.NewFilter()
	for class, path := range map[record.Class]string{
		record.NonInteriorPoint: cfg.Priors.NonIP,
		record.NonReflexive:     cfg.Priors.NonReflexive,
		record.Reflexive:        cfg.Priors.Reflexive,
	} {
		if err := filter.Load(class, path); err != nil {
			return stats, err
		}
		if path != "" {
			logger.Debug("resume state loaded", "class", class.String(), "keys", filter.Len(class))
		}
	}

	wsScan := record.NewWeightSystemScanner(wsSrc)
	infoScan := record.NewPolytopeInfoScanner(infoSrc)
	corr := correlate.New(wsScan, infoScan)

	enricher := derive.New(func(o *derive.Options) {
		o.Workers = cfg.EnrichWorkers
	})
	batchSize := cfg.EnrichBatchSize
	if batchSize < 1 {
		batchSize = defaultEnrichBatchSize
	}

	run := &runState{
		cfg:      cfg,
		logger:   logger,
		stats:    stats,
		filter:   filter,
		enricher: enricher,
	}
	if cfg.IncludeDerived {
		run.batch = make([]*record.Correlated, 0, batchSize)
	}

	err = run.loop(ctx, corr, batchSize)

	// Flush on every exit path; records buffered at the limit or at a
	// fatal error must still reach the file.
	if run.writer != nil {
		flushErr := run.writer.Close()
		if err == nil {
			err = flushErr
		}
		for class := record.Class(0); class < record.NumClasses; class++ {
			stats.Written += run.writer.Written(class)
		}
	}

	stats.WeightSystemsRead = wsScan.Read()
	stats.PolytopeInfosRead = infoScan.Read()
	stats.DanglingInfos = corr.Dangling()
	stats.Elapsed = time.Since(start)

	stats.LogSummary(logger, err)

	return stats, err
}

// runState carries the mutable pieces of one run through the loop.
type runState struct {
	cfg      Config
	logger   *slog.Logger
	stats    *Stats
	filter   *resume.Filter
	enricher *derive.Enricher

	writer *pqcol.Writer
	batch  []*record.Correlated
}

// ensureWriter opens the partition files once the input dimension is
// known, after validating it against any loaded resume state.
func (r *runState) ensureWriter(dim int) error {
	if r.writer != nil {
		return nil
	}
	if err := r.filter.CheckDimension(dim); err != nil {
		return err
	}

	w, err := pqcol.NewWriter(r.cfg.Outputs, dim, r.cfg.IncludeDerived, func(o *pqcol.Options) {
		if r.cfg.RowGroupSize > 0 {
			o.RowGroupSize = r.cfg.RowGroupSize
		}
	})
	if err != nil {
		return err
	}
	r.writer = w

	return nil
}

func (r *runState) loop(ctx context.Context, corr *correlate.Correlator, batchSize int) error {
	for {
		if r.cfg.Limit > 0 && r.stats.Correlated >= r.cfg.Limit {
			r.stats.LimitReached = true
			r.logger.Info("record limit reached", "limit", r.cfg.Limit)
			break
		}

		rec, err := corr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			var gap *correlate.GapError
			if errors.As(err, &gap) {
				r.stats.Gaps++
				r.logger.Debug("correlation gap", "key", gap.Key)
				if err := r.ensureWriter(corr.Dimension()); err != nil {
					return err
				}
				continue
			}

			var malformed *record.MalformedRecordError
			if errors.As(err, &malformed) {
				r.stats.Malformed++
				r.logger.Warn("skipping malformed record", "line", malformed.Line, "reason", malformed.Reason)
				if r.stats.Malformed > r.cfg.MalformedLimit {
					return fmt.Errorf("%w: %d", ErrMalformedLimit, r.stats.Malformed)
				}
				continue
			}

			return err
		}

		r.stats.Correlated++
		rec.Class = classify.Classify(rec.Info)
		*r.stats.classCount(rec.Class)++

		if err := r.ensureWriter(corr.Dimension()); err != nil {
			return err
		}

		if r.filter.Contains(rec.Class, rec.WeightSystem.Key) {
			r.stats.ResumeSkipped++
			continue
		}

		if r.cfg.IncludeDerived {
			r.batch = append(r.batch, rec)
			if len(r.batch) >= batchSize {
				if err := r.drainBatch(ctx); err != nil {
					return err
				}
			}
			continue
		}

		if err := r.writer.Append(rec); err != nil {
			return err
		}
	}

	if len(r.batch) > 0 {
		if err := r.drainBatch(ctx); err != nil {
			return err
		}
	}

	return nil
}

// drainBatch enriches the pending batch and appends it in order.
func (r *runState) drainBatch(ctx context.Context) error {
	errs := r.enricher.EnrichBatch(ctx, r.batch)
	for i, rec := range r.batch {
		if errs[i] != nil {
			r.stats.DeriveFailures++
			r.logger.Warn("derived quantities unavailable", "key", rec.WeightSystem.Key, "error", errs[i])
		}
		if err := r.writer.Append(rec); err != nil {
			return err
		}
	}
	r.batch = r.batch[:0]
	return nil
}

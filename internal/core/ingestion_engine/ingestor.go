package ingestion_engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/metrics"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job Job) error
	ProcessOne(ctx context.Context, job Job) error
}

// Job asks for a dataset to be reconciled against Documents.
type Job struct {
	DatasetID string
	Documents []models.Document
}

var _ Ingestor = (*DatasetIngestor)(nil)

// DatasetIngestor runs reconciliations on a worker pool, one at a time per
// dataset id, retrying failed runs with a fixed delay. The queue carries
// dataset ids; the documents to apply live in a per-dataset pending slot
// that a newer Enqueue overwrites, so the latest request always wins.
type DatasetIngestor struct {
	reconciler *Reconciler
	store      core.DatasetStore
	notifier   core.StatusNotifier
	locks      *KeyedMutex
	cfg        IngestConfig
	jobs       chan string
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[string]*Job
}

// NewDatasetIngestor constructs the ingestor with a bounded job queue.
// locks must be the same KeyedMutex the dataset service takes on delete.
func NewDatasetIngestor(reconciler *Reconciler, store core.DatasetStore, notifier core.StatusNotifier, locks *KeyedMutex, cfg IngestConfig, m *metrics.Metrics, log zerolog.Logger) *DatasetIngestor {
	cfg = cfg.withDefaults()
	return &DatasetIngestor{
		reconciler: reconciler, store: store, notifier: notifier, locks: locks,
		cfg: cfg, jobs: make(chan string, cfg.QueueSize), metrics: m, log: log,
		pending: make(map[string]*Job),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx ends.
func (i *DatasetIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = i.cfg.Workers
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Debug().Int("worker", w).Msg("ingest worker shutting down")
					return
				case datasetID := <-i.jobs:
					i.metrics.SetQueueDepth(len(i.jobs))
					if err := i.runPending(ctx, datasetID, w); err != nil {
						i.log.Error().Err(err).Str("dataset_id", datasetID).Msg("dataset ingestion failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a reconciliation, replacing any request for the same
// dataset that no worker has picked up yet. It blocks while the queue is full.
func (i *DatasetIngestor) Enqueue(ctx context.Context, job Job) error {
	i.mu.Lock()
	prev := i.pending[job.DatasetID]
	i.pending[job.DatasetID] = &job
	i.mu.Unlock()

	select {
	case i.jobs <- job.DatasetID:
		i.metrics.SetQueueDepth(len(i.jobs))
		return nil
	case <-ctx.Done():
		i.mu.Lock()
		defer i.mu.Unlock()
		if i.pending[job.DatasetID] != &job {
			// already claimed by a worker or replaced by a newer request
			return nil
		}
		if prev != nil {
			i.pending[job.DatasetID] = prev
		} else {
			delete(i.pending, job.DatasetID)
		}
		return ctx.Err()
	}
}

// runPending takes the dataset lock and then claims the newest pending job.
// Claiming under the lock means a worker that lost the race for the lock
// finds the slot empty instead of replaying an older request.
func (i *DatasetIngestor) runPending(ctx context.Context, datasetID string, worker int) error {
	unlock := i.locks.Lock(datasetID)
	defer unlock()

	i.mu.Lock()
	job, ok := i.pending[datasetID]
	delete(i.pending, datasetID)
	i.mu.Unlock()
	if !ok {
		return nil
	}

	i.log.Info().Str("dataset_id", datasetID).Int("worker", worker).Msg("processing dataset")
	return i.process(ctx, *job)
}

// ProcessOne reconciles one dataset under its lock and records the outcome.
func (i *DatasetIngestor) ProcessOne(ctx context.Context, job Job) error {
	unlock := i.locks.Lock(job.DatasetID)
	defer unlock()
	return i.process(ctx, job)
}

// process must be called with the dataset lock held.
func (i *DatasetIngestor) process(ctx context.Context, job Job) error {
	log := i.log.With().Str("dataset_id", job.DatasetID).Logger()

	if err := i.store.SetDatasetStatus(ctx, job.DatasetID, models.DatasetStatusProcessing, ""); err != nil {
		if errors.Is(err, core.ErrDatasetNotFound) {
			log.Info().Msg("dataset deleted before ingestion started")
			return nil
		}
		return err
	}
	i.notify(ctx, job.DatasetID, models.DatasetStatusProcessing)

	attempt := 0
	op := func() error {
		attempt++
		_, err := i.reconciler.Reconcile(ctx, job.DatasetID, job.Documents)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(i.cfg.RetryDelay), uint64(i.cfg.MaxRetries)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("reconciliation failed, retrying")
	})

	if errors.Is(err, core.ErrDatasetNotFound) {
		log.Info().Msg("dataset deleted during ingestion")
		i.metrics.RecordJob("cancelled")
		return nil
	}
	if err != nil {
		if serr := i.store.SetDatasetStatus(context.WithoutCancel(ctx), job.DatasetID, models.DatasetStatusFailed, err.Error()); serr != nil {
			log.Error().Err(serr).Msg("record failed status")
		}
		i.metrics.RecordJob(string(models.DatasetStatusFailed))
		i.notify(ctx, job.DatasetID, models.DatasetStatusFailed)
		return err
	}

	if err := i.store.SetDatasetStatus(ctx, job.DatasetID, models.DatasetStatusReady, ""); err != nil {
		return err
	}
	i.metrics.RecordJob(string(models.DatasetStatusReady))
	i.notify(ctx, job.DatasetID, models.DatasetStatusReady)
	log.Info().Int("attempts", attempt).Msg("dataset ready")
	return nil
}

func (i *DatasetIngestor) notify(ctx context.Context, datasetID string, status models.DatasetStatus) {
	if i.notifier == nil {
		return
	}
	if err := i.notifier.UpdateStatus(context.WithoutCancel(ctx), datasetID, status.Code()); err != nil {
		i.log.Warn().Err(err).Str("dataset_id", datasetID).Str("status", string(status)).Msg("status webhook failed")
	}
}

// isPermanent reports errors a retry cannot fix.
func isPermanent(err error) bool {
	var invalid *core.InvalidSplitOptionError
	return errors.As(err, &invalid) ||
		errors.Is(err, core.ErrDatasetNotFound) ||
		errors.Is(err, core.ErrDuplicateDocument) ||
		errors.Is(err, context.Canceled)
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"conversions-relay-service/internal/model"
	"conversions-relay-service/internal/repository"
)

// RecordWorker persists delivery records in the background. Writes are
// best-effort: a full queue or a failing database is logged and never blocks
// or fails the delivery pipeline.
type RecordWorker interface {
	Enqueue(event model.Event)
	Shutdown()
}

type recordWorker struct {
	repo          repository.EventRepository
	queue         chan model.Event
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
}

// NewRecordWorker starts the background flush loop.
func NewRecordWorker(repo repository.EventRepository, bufferSize, batchSize int, interval time.Duration) *recordWorker {
	worker := &recordWorker{
		repo:          repo,
		queue:         make(chan model.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: interval,
	}
	worker.wg.Add(1)
	go worker.startLoop()
	return worker
}

// Enqueue hands a record version to the worker. When the buffer is full the
// record is dropped rather than blocking the caller.
func (w *recordWorker) Enqueue(event model.Event) {
	select {
	case w.queue <- event:
	default:
		log.Warn().Str("event_id", event.ID).Str("status", event.Status).Msg("record queue full, dropping record write")
	}
}

// Shutdown drains the queue and stops the loop.
func (w *recordWorker) Shutdown() {
	close(w.queue)
	w.wg.Wait()
	log.Info().Msg("record worker stopped")
}

func (w *recordWorker) startLoop() {
	defer w.wg.Done()

	var batch []model.Event
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.queue:
			if !ok {
				if len(batch) > 0 {
					w.flush(batch)
				}
				return
			}

			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = nil
			}
		}
	}
}

func (w *recordWorker) flush(events []model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.repo.CreateBatch(ctx, events); err != nil {
		log.Error().Int("count", len(events)).Err(err).Msg("record batch insert failed")
		return
	}
	log.Debug().Int("count", len(events)).Msg("record batch flushed")
}

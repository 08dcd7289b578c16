package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"collabd/internal/models"
)

var (
	ErrArchiveQueueFull = errors.New("archive queue full")
	ErrArchiverStopped  = errors.New("archiver is shut down")
)

const storeTimeout = 5 * time.Second

// EditArchiverImpl copies accepted edits to durable storage with a fixed
// pool of workers. Submit never blocks: the in-memory session is the source
// of truth, the archive is best effort.
type EditArchiverImpl struct {
	repo EditRepository

	jobs    chan *models.EditOperation
	workers int
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewEditArchiver creates the pool. Call Start before submitting.
func NewEditArchiver(repo EditRepository, numWorkers, queueSize int) *EditArchiverImpl {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &EditArchiverImpl{
		repo:    repo,
		jobs:    make(chan *models.EditOperation, queueSize),
		workers: numWorkers,
	}
}

func (a *EditArchiverImpl) Start() {
	log.Printf("🔧 Starting edit archiver with %d workers", a.workers)

	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}

	log.Println("✓ Edit archiver started")
}

// worker drains the queue until it is closed by Shutdown.
func (a *EditArchiverImpl) worker(id int) {
	defer a.wg.Done()

	for op := range a.jobs {
		if err := a.store(op); err != nil {
			log.Printf("  Archiver worker %d: %v", id, err)
		}
	}
}

func (a *EditArchiverImpl) store(op *models.EditOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := a.repo.StoreEdit(ctx, op); err != nil {
		return fmt.Errorf("failed to archive edit %s (document %s, version %d): %w",
			op.ID, op.DocumentID, op.Version, err)
	}
	return nil
}

// Submit queues op for archiving.
func (a *EditArchiverImpl) Submit(op *models.EditOperation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrArchiverStopped
	}

	select {
	case a.jobs <- op:
		return nil
	default:
		return ErrArchiveQueueFull
	}
}

// Shutdown stops accepting edits and waits for queued ones to be written.
func (a *EditArchiverImpl) Shutdown() {
	log.Println("🛑 Shutting down edit archiver...")

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.jobs)
	a.mu.Unlock()

	a.wg.Wait()

	log.Println("✓ Edit archiver shutdown complete")
}

// QueueLength returns the number of edits waiting to be written.
func (a *EditArchiverImpl) QueueLength() int {
	return len(a.jobs)
}

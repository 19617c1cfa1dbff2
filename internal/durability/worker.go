// Package durability turns in-memory mutations into crash-safe writes of the
// data file.
//
// A Worker runs one goroutine that waits for save requests. The first
// request starts a debounce window; requests arriving during the window are
// absorbed. When the window closes the worker snapshots the store and hands
// it to a Writer, which writes a temp file, backs up the live file, and
// renames the temp file over it. Because every write serializes the current
// snapshot, dropping duplicate requests never loses data.
package durability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// State is the worker's position in its save cycle.
type State int32

// Worker states.
const (
	Idle       State = iota // waiting for a request
	Collecting              // inside the debounce window
	Writing                 // writing a snapshot
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Writing:
		return "writing"
	}
	return "unknown"
}

// SnapshotFunc returns the records to persist. It is called without any
// worker lock held and must return a copy.
type SnapshotFunc func() []types.Record

// Worker is the background save loop.
type Worker struct {
	writer    *Writer
	snapshot  SnapshotFunc
	debounce  time.Duration
	observers *Observers
	logger    *log.Logger

	requests chan struct{}
	stop     chan struct{}
	done     chan struct{}

	state   atomic.Int32
	pending atomic.Bool
	stopped atomic.Bool
	started atomic.Bool

	writeMu  sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// NewWorker returns a stopped worker. Call Start to run the loop.
func NewWorker(writer *Writer, snapshot SnapshotFunc, debounce time.Duration, observers *Observers, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if observers == nil {
		observers = NewObservers(logger)
	}
	return &Worker{
		writer:    writer,
		snapshot:  snapshot,
		debounce:  debounce,
		observers: observers,
		logger:    logger,
		requests:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the save loop. Calling Start more than once has no effect.
func (w *Worker) Start() {
	if w.started.CompareAndSwap(false, true) {
		go w.run()
	}
}

// State returns the current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Pending reports whether a save has been requested but not yet written.
func (w *Worker) Pending() bool {
	return w.pending.Load()
}

// Request asks for a save. It never blocks: when a request is already
// queued the new one is absorbed by it. Requests after Shutdown are ignored.
func (w *Worker) Request() {
	if w.stopped.Load() {
		w.logger.Debug("save requested after shutdown, ignoring")
		return
	}
	w.pending.Store(true)
	select {
	case w.requests <- struct{}{}:
	default:
		coalescedRequestsTotal.Inc()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.requests:
		}

		w.state.Store(int32(Collecting))
		if !w.collect() {
			return
		}
		if w.pending.Load() {
			_ = w.flush(context.Background())
		}
		w.state.Store(int32(Idle))
	}
}

// collect waits out the debounce window, absorbing requests that arrive
// during it. Returns false if the worker is stopping; the pending flag is
// left set so Shutdown writes the final snapshot.
func (w *Worker) collect() bool {
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			select {
			case <-w.requests:
			default:
			}
			return true
		case <-w.requests:
			coalescedRequestsTotal.Inc()
		case <-w.stop:
			return false
		}
	}
}

// Flush writes the current snapshot now, regardless of the debounce window.
func (w *Worker) Flush(ctx context.Context) error {
	return w.flush(ctx)
}

func (w *Worker) flush(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	prev := State(w.state.Swap(int32(Writing)))
	defer w.state.Store(int32(prev))

	w.pending.Store(false)
	records := w.snapshot()
	if err := w.writer.Write(ctx, records); err != nil {
		w.observers.NotifyError(err)
		return err
	}
	w.logger.WithFields(log.Fields{"path": w.writer.Path(), "records": len(records)}).Debug("snapshot saved")
	w.observers.NotifySuccess()
	return nil
}

// Shutdown stops the loop and, if a save is pending, writes one final
// snapshot before returning. It returns the final write's error. Further
// calls return the same result.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.stop)
		if w.started.Load() {
			<-w.done
		}
		w.state.Store(int32(Idle))
		if w.pending.Load() {
			w.stopErr = w.flush(ctx)
		}
	})
	return w.stopErr
}

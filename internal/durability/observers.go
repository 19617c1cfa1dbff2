package durability

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Observers holds the save-success and error callbacks. Each callback runs
// under recover so a panicking callback cannot stop the worker or skip the
// callbacks registered after it.
type Observers struct {
	mu        sync.Mutex
	onSuccess []func()
	onError   []func(error)
	logger    *log.Logger
}

// NewObservers returns an empty callback list.
func NewObservers(logger *log.Logger) *Observers {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Observers{logger: logger}
}

// OnSaveSuccess registers fn to run after every successful write.
func (o *Observers) OnSaveSuccess(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSuccess = append(o.onSuccess, fn)
}

// OnError registers fn to receive persistence and recovery errors.
func (o *Observers) OnError(fn func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = append(o.onError, fn)
}

// NotifySuccess runs the success callbacks in registration order.
func (o *Observers) NotifySuccess() {
	o.mu.Lock()
	fns := append([]func(){}, o.onSuccess...)
	o.mu.Unlock()

	for _, fn := range fns {
		o.call("save_success", fn)
	}
}

// NotifyError runs the error callbacks in registration order.
func (o *Observers) NotifyError(err error) {
	o.mu.Lock()
	fns := append([]func(error){}, o.onError...)
	o.mu.Unlock()

	for _, fn := range fns {
		o.call("error", func() { fn(err) })
	}
}

func (o *Observers) call(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(log.Fields{"callback": kind, "panic": r}).Warn("callback panicked")
		}
	}()
	fn()
}

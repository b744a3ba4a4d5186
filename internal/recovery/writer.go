package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// Writer saves state in the background, last write wins. Persist never
// blocks; a state queued while an older one is being written replaces any
// state still waiting.
type Writer struct {
	store  Store
	device string
	opts   PersistOptions

	mu      sync.Mutex
	pending *PersistedState

	// held for the duration of a store write
	saving sync.Mutex

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWriter(store Store, device string, opts PersistOptions) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:  store,
		device: device,
		opts:   opts,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) Persist(st PersistedState) {
	w.mu.Lock()
	w.pending = &st
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Discard drops any queued state and waits for an in-flight write to finish.
func (w *Writer) Discard() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	w.saving.Lock()
	defer w.saving.Unlock()
}

// Flush writes the queued state synchronously, if any.
func (w *Writer) Flush(ctx context.Context) error {
	w.saving.Lock()
	defer w.saving.Unlock()

	st := w.take()
	if st == nil {
		return nil
	}
	return w.store.Save(ctx, w.device, *st)
}

// Close stops the background loop. Queued state is dropped.
func (w *Writer) Close() {
	w.cancel()
	<-w.done
}

func (w *Writer) take() *PersistedState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.pending
	w.pending = nil
	return st
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
			w.write()
		}
	}
}

func (w *Writer) write() {
	w.saving.Lock()
	defer w.saving.Unlock()

	st := w.take()
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(w.ctx, writeTimeout)
	defer cancel()
	if err := w.store.Save(ctx, w.device, *st); err != nil {
		w.opts.report(err, logrus.Fields{"device": w.device, "session_id": st.SessionID})
	}
}

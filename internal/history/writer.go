package history

import (
	"context"
	"sync"

	"github.com/efecan0/trading-gateway-go/internal/logger"
)

// ArchiveSink is the optional secondary audit store. Failures here are
// logged, never surfaced.
type ArchiveSink interface {
	SaveOrderLog(idempKey, status, orderID, resultJSON string) error
}

type logEntry struct {
	idempKey   string
	status     string
	orderID    string
	resultJSON string
}

// AsyncWriter drains order-log appends on a single consumer goroutine so a
// slow store never blocks the handler path. A failed append gets exactly one
// reconnect-and-retry; the client reply is never tied to the outcome.
type AsyncWriter struct {
	repo    Repository
	archive ArchiveSink

	ch       chan logEntry
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewAsyncWriter(repo Repository, archive ArchiveSink) *AsyncWriter {
	w := &AsyncWriter{
		repo:    repo,
		archive: archive,
		ch:      make(chan logEntry, 1024),
	}
	w.wg.Add(1)
	go w.drain()
	return w
}

// Append enqueues without blocking; a full queue drops the entry with a log
// line rather than stalling order placement.
func (w *AsyncWriter) Append(idempKey, status, orderID, resultJSON string) {
	entry := logEntry{idempKey: idempKey, status: status, orderID: orderID, resultJSON: resultJSON}
	select {
	case w.ch <- entry:
	default:
		logger.WarnF("Order log queue full, dropping entry for %s", orderID)
	}
}

func (w *AsyncWriter) drain() {
	defer w.wg.Done()
	for entry := range w.ch {
		w.write(entry)
	}
}

func (w *AsyncWriter) write(entry logEntry) {
	if w.repo != nil {
		err := w.repo.AppendOrderLog(entry.idempKey, entry.status, entry.orderID, entry.resultJSON)
		if err != nil {
			logger.WarnF("Order log append failed for %s, attempting reconnect, details: %v", entry.orderID, err)
			if rerr := w.repo.Reconnect(); rerr != nil {
				logger.ErrorF("Order log reconnect failed, details: %v", rerr)
			} else if err = w.repo.AppendOrderLog(entry.idempKey, entry.status, entry.orderID, entry.resultJSON); err != nil {
				logger.ErrorF("Order log retry failed for %s, details: %v", entry.orderID, err)
			}
		}
	}

	if w.archive != nil {
		if err := w.archive.SaveOrderLog(entry.idempKey, entry.status, entry.orderID, entry.resultJSON); err != nil {
			logger.WarnF("Order log archive write failed for %s, details: %v", entry.orderID, err)
		}
	}
}

// Invoke drains remaining entries and stops the consumer; registered with the
// shutdown cleaner.
func (w *AsyncWriter) Invoke(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.ch) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

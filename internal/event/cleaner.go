package event

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/logger"
)

type Callable interface {
	Invoke(ctx context.Context) error
}

type cleanerEntry struct {
	name     string
	callable Callable
}

// Cleaner runs the registered shutdown stages on SIGINT/SIGTERM. Stages run
// in reverse registration order: the endpoint registers last and must stop
// accepting first, then the writers drain, then the engines stop.
type Cleaner struct {
	cleaners       []cleanerEntry
	mu             sync.Mutex
	initOnce       sync.Once
	cleaning       bool
	loggerShutdown Callable
}

var cleanerInstance = &Cleaner{}

func NewCleaner() *Cleaner {
	return cleanerInstance
}

func (c *Cleaner) Add(name string, callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.DebugF("Cleaner is already shutting down, ignoring %s", name)
		return
	}
	c.cleaners = append(c.cleaners, cleanerEntry{name: name, callable: callable})
}

func (c *Cleaner) Init(loggerShutdown Callable) {
	c.initOnce.Do(func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		c.loggerShutdown = loggerShutdown

		go func() {
			<-ctx.Done()
			stop()
			logger.Info("Received interrupt signal, shutting down")

			c.mu.Lock()
			c.cleaning = true // block further Add calls while draining
			cleanersCopy := make([]cleanerEntry, len(c.cleaners))
			copy(cleanersCopy, c.cleaners)
			c.mu.Unlock()

			logger.DebugF("Starting cleanup of %d registered stages", len(cleanersCopy))

			var errs []error
			for i := len(cleanersCopy) - 1; i >= 0; i-- {
				func(entry cleanerEntry) { // anonymous func so defer fires per stage
					logger.DebugF("Stopping %s", entry.name)
					timeoutCtx, cancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancelFunc()
					if err := entry.callable.Invoke(timeoutCtx); err != nil {
						logger.ErrorF("Shutdown of %s failed: %v", entry.name, err)
						errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
					}
				}(cleanersCopy[i])
			}

			if len(errs) > 0 {
				logger.ErrorF("%d errors occurred during cleanup:", len(errs))
				for i, err := range errs {
					logger.ErrorF("Error %d: %v", i+1, err)
				}
			} else {
				logger.Debug("All stages stopped cleanly")
			}
			logger.Info("Cleanup finished, gateway offline")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
			}
			syscall.Exit(0)
		}()
	})
}

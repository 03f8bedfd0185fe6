package hub

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDrains bounds how many cleanups run at once during drain.
const maxConcurrentDrains = 16

// Coordinator drains every live session across its registries exactly once,
// no matter how many termination signals arrive.
type Coordinator struct {
	registries []*Registry
	logger     zerolog.Logger

	once sync.Once
	done chan struct{}
}

// NewCoordinator creates a coordinator over the given registries.
func NewCoordinator(logger zerolog.Logger, registries ...*Registry) *Coordinator {
	return &Coordinator{
		registries: registries,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Drain retires every live session concurrently, bounded by each registry's
// cleanup deadline. Failures are logged, never propagated; later calls and
// concurrent calls block until the first drain finishes, then return.
func (c *Coordinator) Drain(ctx context.Context) {
	c.once.Do(func() {
		defer close(c.done)

		total := 0
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentDrains)

		for _, r := range c.registries {
			r := r
			for _, s := range r.liveSessions() {
				s := s
				total++
				g.Go(func() error {
					r.destroy(s, "drained")
					return nil
				})
			}
		}

		g.Wait()

		c.logger.Info().
			Int("sessions", total).
			Int("registries", len(c.registries)).
			Msg("Shutdown drain complete")
	})

	<-c.done
}

// Done is closed once a drain has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// HandleSignals wires SIGINT and SIGTERM to a drain. The composition root
// calls this exactly once; the returned channel is closed after the drain
// triggered by a signal finishes.
func (c *Coordinator) HandleSignals(ctx context.Context) <-chan struct{} {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Info().Str("signal", sig.String()).Msg("Termination signal received, draining sessions")
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
		c.Drain(context.Background())
	}()

	return c.done
}

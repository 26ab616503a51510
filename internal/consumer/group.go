package consumer

import (
	"context"
	"errors"
	"sync"
)

// Group runs several consumers side by side. Each consumer owns its own
// transport stream; ordering holds within a stream only.
type Group struct {
	consumers []*Consumer
}

// NewGroup creates a Group.
func NewGroup(consumers ...*Consumer) *Group {
	return &Group{consumers: consumers}
}

// Run starts all consumers and blocks until every one of them returns.
func (g *Group) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range g.consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Len returns the number of consumers in the group.
func (g *Group) Len() int {
	return len(g.consumers)
}

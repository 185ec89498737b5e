package reader

import (
	"context"
	"time"

	"bookfeed/internal/endpoint"
	"bookfeed/internal/failover"
	"bookfeed/internal/metrics"
	"bookfeed/logger"
)

// Client cycles through the endpoint registry until ctx is cancelled,
// running one supervised connection at a time.
type Client struct {
	registry *endpoint.Registry
	symbol   string
	sup      *Supervisor
	ctrl     *failover.Controller
	log      *logger.Log
}

// NewClient wires the registry, supervisor and failover controller together.
func NewClient(registry *endpoint.Registry, symbol string, sup *Supervisor, policy failover.Policy, opts ...failover.Option) *Client {
	c := &Client{
		registry: registry,
		symbol:   symbol,
		sup:      sup,
		log:      logger.GetLogger(),
	}
	hook := failover.WithBackoffHook(func(wait time.Duration) {
		metrics.IncrementReconnectCycle()
		c.log.WithComponent("client").WithFields(logger.Fields{
			"wait":      wait.String(),
			"endpoints": registry.Len(),
		}).Warn("all endpoints failed, backing off")
	})
	c.ctrl = failover.NewController(registry.Len(), policy, append([]failover.Option{hook}, opts...)...)
	return c
}

// Controller exposes the failover state.
func (c *Client) Controller() *failover.Controller { return c.ctrl }

// Run blocks until ctx is cancelled. Connection failures never end the loop.
func (c *Client) Run(ctx context.Context) error {
	log := c.log.WithComponent("client").WithField("symbol", c.symbol)
	log.WithField("endpoints", c.registry.Len()).Info("client started")

	for ctx.Err() == nil {
		idx := c.ctrl.Index()
		ep := c.registry.At(idx)

		err := c.sup.Run(ctx, ep, c.symbol, c.ctrl.Reset)
		if ctx.Err() != nil {
			break
		}
		log.WithError(err).WithFields(logger.Fields{
			"endpoint": ep.String(),
			"index":    idx,
		}).Warn("connection cycle failed")

		metrics.IncrementConnectionFailure(string(ep.Family))
		metrics.EmitMetric(c.log, "client", "connection_failures", 1, "counter", logger.Fields{
			"family": string(ep.Family),
			"index":  idx,
		})

		if err := c.ctrl.Fail(ctx); err != nil {
			break
		}
		next := c.ctrl.Index()
		if next != idx {
			metrics.EmitMetric(c.log, "client", "endpoint_switch", 1, "counter", logger.Fields{
				"from": idx,
				"to":   next,
			})
		}
	}

	log.Info("client stopped")
	return nil
}

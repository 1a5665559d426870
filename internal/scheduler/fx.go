package scheduler

import (
	"context"

	"github.com/smallbiznis/trailpay/internal/payment/dispatcher"
	"github.com/smallbiznis/trailpay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(func(s *webhook.Service) EventReplayer { return s }),
	fx.Provide(func(d *dispatcher.Dispatcher) TransferAttributor { return d }),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

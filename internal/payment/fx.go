package payment

import (
	"github.com/smallbiznis/trailpay/internal/payment/adapters"
	"github.com/smallbiznis/trailpay/internal/payment/adapters/stripe"
	"github.com/smallbiznis/trailpay/internal/payment/dispatcher"
	"github.com/smallbiznis/trailpay/internal/payment/repository"
	"github.com/smallbiznis/trailpay/internal/payment/webhook"
	stripeclient "github.com/smallbiznis/trailpay/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(func(c *stripeclient.Client) dispatcher.PaymentClient { return c }),
	fx.Provide(dispatcher.New),
	fx.Provide(func(d *dispatcher.Dispatcher) webhook.Dispatcher { return d }),
	fx.Provide(webhook.NewService),
)

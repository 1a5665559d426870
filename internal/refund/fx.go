package refund

import (
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	"github.com/smallbiznis/trailpay/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund",
	fx.Provide(func(c *stripe.Client) service.PaymentClient { return c }),
	fx.Provide(service.NewService),
)

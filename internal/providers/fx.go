package providers

import (
	"github.com/smallbiznis/trailpay/internal/providers/email"
	"github.com/smallbiznis/trailpay/internal/providers/slack"
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
	fx.Provide(stripe.NewFromConfig),
)

package transfer

import (
	"github.com/smallbiznis/trailpay/internal/transfer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer.repository",
	fx.Provide(repository.Provide),
)

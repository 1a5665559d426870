package notification

import "go.uber.org/fx"

var Module = fx.Module("notification",
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Notifier { return s }),
)

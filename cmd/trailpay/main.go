package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trailpay/internal/audit"
	"github.com/smallbiznis/trailpay/internal/auth"
	"github.com/smallbiznis/trailpay/internal/authorization"
	"github.com/smallbiznis/trailpay/internal/booking"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/notification"
	"github.com/smallbiznis/trailpay/internal/observability"
	"github.com/smallbiznis/trailpay/internal/payment"
	"github.com/smallbiznis/trailpay/internal/payout"
	"github.com/smallbiznis/trailpay/internal/profile"
	"github.com/smallbiznis/trailpay/internal/providers"
	"github.com/smallbiznis/trailpay/internal/ratelimit"
	"github.com/smallbiznis/trailpay/internal/refund"
	"github.com/smallbiznis/trailpay/internal/transfer"
	"github.com/smallbiznis/trailpay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var Version = "dev"

var nodeID int64

func main() {
	rootCmd := &cobra.Command{
		Use:          "trailpay",
		Short:        "Payment and refund reconciliation for guided tour bookings",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Int64Var(&nodeID, "node-id", 1, "snowflake node id, unique per running instance")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// coreModules wires configuration, logging, storage and time.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// domainModules wires repositories, providers and the payment and refund services.
func domainModules() fx.Option {
	return fx.Options(
		ratelimit.Module,
		providers.Module,
		notification.Module,

		booking.Module,
		profile.Module,
		transfer.Module,
		payout.Module,

		payment.Module,
		auth.Module,
		authorization.Module,
		audit.Module,
		refund.Module,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(nodeID)
}

package run

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/HazyCorp/statesync/internal/cmd/globflags"
	"github.com/HazyCorp/statesync/internal/fxbuild"
	"github.com/HazyCorp/statesync/internal/metricsrv"
	"github.com/HazyCorp/statesync/internal/stateserver"
)

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the state server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		constructors := fxbuild.GetConstructors()

		var e struct {
			fx.In
			Logger *slog.Logger
		}

		app := fx.New(
			fx.Provide(constructors...),

			fx.Populate(&e),

			fx.Invoke(
				func(*metricsrv.Server, *stateserver.Server) {},
			),

			fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
				return &fxevent.SlogLogger{Logger: l.With(slog.String("component", "infra:fx"))}
			}),
		)

		if err := app.Start(ctx); err != nil {
			return errors.Wrap(err, "cannot start the application")
		}

		l := e.Logger

		select {
		case <-ctx.Done():
			l.Info("got shutdown signal")
		case stopSignal := <-app.Wait():
			l.Info("application ended its work", slog.String("message", stopSignal.String()))
		}

		tCtx, tCancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer tCancel()

		if err := app.Stop(tCtx); err != nil {
			return errors.Wrap(err, "cannot gracefully stop the application")
		}

		l.Info("application shut down successfully")
		return nil
	},
}

func init() {
	RunCmd.
		Flags().
		StringVarP(
			&globflags.ConfigPath,
			"config",
			"c",
			"",
			"path to the yaml config. If config is not specified, the default one will be used.",
		)
}

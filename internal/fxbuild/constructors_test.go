package fxbuild

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/internal/metricsrv"
	"github.com/HazyCorp/statesync/internal/stateserver"
)

func TestConstructorsGraph(t *testing.T) {
	err := fx.ValidateApp(
		fx.Provide(GetConstructors()...),
		fx.Invoke(func(*metricsrv.Server, *stateserver.Server) {}),
	)
	require.NoError(t, err)
}

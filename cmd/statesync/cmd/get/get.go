package get

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/HazyCorp/statesync/internal/cmd/globflags"
	"github.com/HazyCorp/statesync/internal/stateclient"
	"github.com/HazyCorp/statesync/internal/util"
)

var GetCmd = &cobra.Command{
	Use:   "get",
	Short: "prints the current state record",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := stateclient.New(globflags.Addr, globflags.Timeout)

		rec, err := c.Get(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "cannot get state")
		}

		return util.WriteJsonTo(rec, cmd.OutOrStdout())
	},
}

package put

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/HazyCorp/statesync/internal/cmd/globflags"
	"github.com/HazyCorp/statesync/internal/stateclient"
	"github.com/HazyCorp/statesync/internal/util"
)

var (
	file         string
	lastModified string
	retries      int
)

var PutCmd = &cobra.Command{
	Use:   "put",
	Short: "pushes a JSON document as the new state",
	Long: `Pushes a JSON document as the new state.

Without --last-modified the current record is fetched first and its last
modified time is used as the concurrency token. With --retries the command
re-fetches the token and tries again when another writer committed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		state, err := readState(cmd.InOrStdin())
		if err != nil {
			return err
		}

		c := stateclient.New(globflags.Addr, globflags.Timeout)

		var token time.Time
		if lastModified != "" {
			token, err = time.Parse(time.RFC3339Nano, lastModified)
			if err != nil {
				return errors.Wrap(err, "cannot parse --last-modified")
			}
		} else {
			cur, err := c.Get(ctx)
			if err != nil {
				return errors.Wrap(err, "cannot fetch current state")
			}
			token = cur.LastModified
		}

		for attempt := 0; ; attempt++ {
			rec, err := c.Put(ctx, state, token)

			var conflict *stateclient.ConflictError
			if errors.As(err, &conflict) && attempt < retries {
				token = conflict.Current.LastModified
				continue
			}
			if err != nil {
				return errors.Wrap(err, "cannot put state")
			}

			return util.WriteJsonTo(rec, cmd.OutOrStdout())
		}
	},
}

func readState(stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read state from %q", file)
	}

	if !json.Valid(data) {
		return nil, errors.Errorf("%q does not contain valid JSON", file)
	}

	return json.RawMessage(data), nil
}

func init() {
	PutCmd.Flags().StringVarP(&file, "file", "f", "", "JSON document to push, - for stdin")
	PutCmd.Flags().StringVar(&lastModified, "last-modified", "", "concurrency token (RFC 3339), defaults to the stored one")
	PutCmd.Flags().IntVar(&retries, "retries", 0, "how many times to retry after a conflict")
	_ = PutCmd.MarkFlagRequired("file")
}

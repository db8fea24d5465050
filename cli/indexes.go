package cli

import (
	"github.com/spf13/cobra"

	"github.com/stevemurr/termstore/index"
)

func newMatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "match <collection> <index> <json>",
		Short:   "Print the documents whose term fields equal the given values",
		Example: `  termstore match users usersByEmail '{"email":"ann@example.com"}'`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := parsePayload(args[2])
			if err != nil {
				return err
			}
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ix, err := e.Index(args[0], args[1])
			if err != nil {
				return err
			}
			docs, err := ix.Match(cmd.Context(), terms)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), docs)
		},
	}
}

type reindexResult struct {
	Index   string `json:"index"`
	Entries int    `json:"entries"`
	Keys    int    `json:"keys"`
}

// Opening the engine already rebuilds every index from storage, so reindex
// reports on that rebuild and runs another only for the named index.
func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <collection> [index]",
		Short: "Rebuild indexes from storage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			var targets []*index.Index
			if len(args) == 2 {
				ix, err := e.Index(args[0], args[1])
				if err != nil {
					return err
				}
				if err := ix.Reindex(cmd.Context()); err != nil {
					return err
				}
				targets = []*index.Index{ix}
			} else if targets, err = e.Indexes(args[0]); err != nil {
				return err
			}

			out := make([]reindexResult, 0, len(targets))
			for _, ix := range targets {
				out = append(out, reindexResult{Index: ix.Name(), Entries: ix.Len(), Keys: ix.KeyCount()})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <collection> <index>",
		Short: "Compare an index with a rebuild from storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ix, err := e.Index(args[0], args[1])
			if err != nil {
				return err
			}
			report, err := ix.Verify(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

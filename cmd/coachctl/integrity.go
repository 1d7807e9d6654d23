package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dalemusser/coachhub/internal/app/bootstrap"
	relationshipstore "github.com/dalemusser/coachhub/internal/app/store/relationships"
	"github.com/spf13/cobra"
)

type integrityResult struct {
	Inconsistent []integrityRef `json:"inconsistent"`
}

type integrityRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *cli) integrityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Relationship integrity checks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Find relationships whose status and soft-delete fields disagree",
		Long: `Runs one pass of the integrity sweep. Each inconsistent document is
recorded as a critical audit entry and listed. Exits non-zero when any
are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				refs, err := svc.Integrity.Check(ctx)
				if err != nil {
					return err
				}
				res := integrityResult{Inconsistent: toIntegrityRefs(refs)}
				if err := c.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
					if len(refs) == 0 {
						_, err := fmt.Fprintln(w, "no inconsistent relationships")
						return err
					}
					for _, r := range res.Inconsistent {
						if _, err := fmt.Fprintf(w, "%s\tstatus=%s\n", r.ID, r.Status); err != nil {
							return err
						}
					}
					return nil
				}); err != nil {
					return err
				}
				if len(refs) > 0 {
					return fmt.Errorf("%d inconsistent relationships", len(refs))
				}
				return nil
			})
		},
	})
	return cmd
}

func toIntegrityRefs(refs []relationshipstore.InconsistentRef) []integrityRef {
	out := make([]integrityRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, integrityRef{ID: r.ID.Hex(), Status: r.Status})
	}
	return out
}

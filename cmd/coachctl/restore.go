package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dalemusser/coachhub/internal/app/bootstrap"
	"github.com/dalemusser/coachhub/internal/app/lifecycle"
	"github.com/dalemusser/coachhub/internal/app/system/identity"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (c *cli) restoreCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "restore <relationship-id>",
		Short: "Restore a soft-deleted relationship to its status before deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(args[0])
			if err != nil {
				return fmt.Errorf("invalid relationship id %q", args[0])
			}
			actor = strings.TrimSpace(actor)
			if actor == "" {
				return fmt.Errorf("invalid --actor: expected a user id or identity-provider subject")
			}

			return c.run(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				u, err := resolveActor(ctx, svc.Identities, actor)
				if err != nil {
					return fmt.Errorf("resolve actor %s: %w", actor, err)
				}
				rel, err := svc.Engine.Restore(ctx, id, lifecycle.Actor{UserID: u.ID, Role: u.Role})
				if err != nil {
					return err
				}
				return c.emit(cmd.OutOrStdout(), rel, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "restored %s to %s\n", rel.ID.Hex(), rel.Status)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "User id or identity-provider subject of the administrator performing the restore")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// resolveActor treats a valid ObjectID hex as a user id and anything else
// as an identity-provider subject.
func resolveActor(ctx context.Context, r *identity.Resolver, actor string) (*models.User, error) {
	if id, err := primitive.ObjectIDFromHex(actor); err == nil {
		return r.ResolveByID(ctx, id)
	}
	return r.ResolveBySubject(ctx, actor)
}

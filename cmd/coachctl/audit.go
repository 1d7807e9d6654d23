package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dalemusser/coachhub/internal/app/bootstrap"
	"github.com/dalemusser/coachhub/internal/app/store/audit"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and maintain the audit log",
	}
	cmd.AddCommand(c.auditListCmd())
	cmd.AddCommand(c.auditAlertsCmd())
	cmd.AddCommand(c.auditPurgeCmd())
	return cmd
}

func (c *cli) auditListCmd() *cobra.Command {
	var (
		entityType string
		entityID   string
		operation  string
		severity   string
		actor      string
		since      time.Duration
		limit      int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := audit.QueryFilter{
				EntityType: entityType,
				EntityID:   entityID,
				Operation:  operation,
				Limit:      limit,
			}
			if severity != "" {
				if !audit.ValidSeverity(severity) {
					return fmt.Errorf("unknown severity %q", severity)
				}
				filter.Severities = []string{severity}
			}
			if actor != "" {
				id, err := primitive.ObjectIDFromHex(actor)
				if err != nil {
					return fmt.Errorf("invalid --actor %q: expected a user id", actor)
				}
				filter.ActorID = &id
			}
			if since > 0 {
				start := time.Now().UTC().Add(-since)
				filter.StartTime = &start
			}

			return c.run(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				entries, err := svc.Audit.AuditLogs(ctx, filter)
				if err != nil {
					return err
				}
				return c.emitEntries(cmd.OutOrStdout(), entries)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&entityType, "entity-type", "", "Filter by entity type")
	f.StringVar(&entityID, "entity-id", "", "Filter by entity id")
	f.StringVar(&operation, "operation", "", "Filter by operation")
	f.StringVar(&severity, "severity", "", "Filter by severity: info, warning, critical or emergency")
	f.StringVar(&actor, "actor", "", "Filter by actor user id")
	f.DurationVar(&since, "since", 0, "Only entries newer than this (e.g. 24h)")
	f.Int64VarP(&limit, "limit", "n", 50, "Maximum entries")
	return cmd
}

func (c *cli) auditAlertsCmd() *cobra.Command {
	var (
		hours int
		limit int64
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List critical and emergency entries from the last N hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			return c.run(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				entries, err := svc.Audit.CriticalAlerts(ctx, hours, limit)
				if err != nil {
					return err
				}
				return c.emitEntries(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Look-back window in hours")
	cmd.Flags().Int64VarP(&limit, "limit", "n", 100, "Maximum entries")
	return cmd
}

func (c *cli) auditPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries past their retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				n, err := svc.Audit.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				return c.emit(cmd.OutOrStdout(), map[string]int64{"purged": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "purged %d expired entries\n", n)
					return err
				})
			})
		},
	}
}

func (c *cli) emitEntries(w io.Writer, entries []audit.Entry) error {
	if entries == nil {
		entries = []audit.Entry{}
	}
	return c.emit(w, entries, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tSEVERITY\tOPERATION\tENTITY\tACTOR\tMESSAGE")
		for _, e := range entries {
			actor := "-"
			if e.ActorID != nil {
				actor = e.ActorID.Hex()
			}
			entity := e.EntityType
			if e.EntityID != "" {
				entity += "/" + e.EntityID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.Severity, e.Operation, entity, actor, e.Message)
		}
		return tw.Flush()
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/treecleaner/internal/app"
	"github.com/heartmarshall/treecleaner/internal/auth"
	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/issue"
	"github.com/heartmarshall/treecleaner/internal/transport/rest"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			version, err := app.Migrate(ctx, cfg.Database)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"version": version})
		},
	}
}

func newScanCmd(opts *options) *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run every detector and reconcile the issue store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, false, func(ctx context.Context, b *app.Backend) error {
				res, err := b.Scan.Scan(ctx, incremental)
				if err != nil {
					return err
				}
				return printJSON(cmd, rest.ScanView(res))
			})
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "keep issues that are no longer detected open")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the data-quality dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, true, func(ctx context.Context, b *app.Backend) error {
				s, err := b.Scan.Summary(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, rest.SummaryView(s))
			})
		},
	}
}

func addPageFlags(cmd *cobra.Command, page *issue.Page) {
	cmd.Flags().IntVar(&page.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&page.PerPage, "per-page", 0, "items per page")
}

func newIssuesCmd(opts *options) *cobra.Command {
	var (
		issueType, status string
		page              issue.Page
	)
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List detected issues, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, true, func(ctx context.Context, b *app.Backend) error {
				list, err := b.Issues.ListIssues(ctx, issue.ListIssuesInput{
					Type:   domain.IssueType(issueType),
					Status: domain.IssueStatus(status),
					Page:   page,
				})
				if err != nil {
					return err
				}
				view, err := rest.IssuesView(list)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
	cmd.Flags().StringVar(&issueType, "type", "", "issue type filter, e.g. duplicate_person")
	cmd.Flags().StringVar(&status, "status", "", "status filter: open, resolved or ignored")
	addPageFlags(cmd, &page)
	return cmd
}

func newActionsCmd(opts *options) *cobra.Command {
	var page issue.Page
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the action log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, false, func(ctx context.Context, b *app.Backend) error {
				list, err := b.Issues.ListActionLog(ctx, issue.ListActionLogInput{Page: page})
				if err != nil {
					return err
				}
				return printJSON(cmd, rest.ActionLogView(list))
			})
		},
	}
	addPageFlags(cmd, &page)
	return cmd
}

func newUndoCmd(opts *options) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "undo <action-id>",
		Short: "Revert a logged action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("action id %q: %w", args[0], err)
			}
			return opts.withBackend(cmd, false, func(ctx context.Context, b *app.Backend) error {
				res, err := b.Remediation.Undo(ctx, id, user)
				if err != nil {
					return err
				}
				return printJSON(cmd, rest.ActionView(res))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "operator recorded on the undo action")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRulesCmd(opts *options) *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and replay place normalization rules",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved place rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, false, func(ctx context.Context, b *app.Backend) error {
				saved, err := b.Remediation.ListRules(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, rest.RulesView(saved))
			})
		},
	}

	var user string
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Apply every approved rule to current records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, false, func(ctx context.Context, b *app.Backend) error {
				results, err := b.Remediation.ReplayApprovedRules(ctx, user)
				if len(results) > 0 {
					if perr := printJSON(cmd, rest.ActionsView(results)); perr != nil {
						return errors.Join(err, perr)
					}
				}
				return err
			})
		},
	}
	replay.Flags().StringVar(&user, "user", "", "operator recorded on each normalization")
	_ = replay.MarkFlagRequired("user")

	rules.AddCommand(list, replay)
	return rules
}

func newTokenCmd(opts *options) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Manage operator tokens for the HTTP API",
	}

	var (
		operator string
		ttl      time.Duration
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an operator token with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.offline() {
				return errors.New("token issue reads auth settings from the config file; drop --file")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.OperatorSecret == "" {
				return errors.New("auth.operator_secret is not configured")
			}
			signed, err := auth.NewOperatorTokens(cfg.Auth.OperatorSecret, cfg.Auth.Issuer).Issue(operator, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	issueCmd.Flags().StringVar(&operator, "operator", "", "operator name carried in the token")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = issueCmd.MarkFlagRequired("operator")

	token.AddCommand(issueCmd)
	return token
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion())
			return err
		},
	}
}

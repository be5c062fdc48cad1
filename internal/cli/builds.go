package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) buildsCommand() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List saved builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			list, err := a.api().Builds(ctx, page, size)
			if err != nil {
				return explain(err)
			}
			renderBuildList(a.out, list)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 20, "page size")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show a saved build",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				ctx, cancel := a.requestContext(cmd.Context())
				defer cancel()
				b, err := a.api().Build(ctx, args[0])
				if err != nil {
					return explain(err)
				}
				renderBuildView(a.out, b)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a saved build",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				ctx, cancel := a.requestContext(cmd.Context())
				defer cancel()
				b, err := a.api().RenameBuild(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return explain(err)
				}
				fmt.Fprintf(a.out, "✓ Renamed to %q\n", b.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved build",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				ctx, cancel := a.requestContext(cmd.Context())
				defer cancel()
				if err := a.api().DeleteBuild(ctx, args[0]); err != nil {
					return explain(err)
				}
				fmt.Fprintln(a.out, "✓ Build deleted")
				return nil
			},
		},
	)
	return cmd
}

func (a *app) conversationsCommand() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"history"},
		Short:   "List your conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			list, err := a.api().Conversations(ctx, page, size)
			if err != nil {
				return explain(err)
			}
			if len(list.Conversations) == 0 {
				fmt.Fprintln(a.out, "No conversations yet, run 'pcbuild chat' to start one.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tMESSAGES\tBUILD\tUPDATED")
			for _, c := range list.Conversations {
				buildID := "-"
				if c.BuildID != nil {
					buildID = *c.BuildID
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.State, c.Messages, buildID, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			tw.Flush()
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 20, "page size")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			if err := a.api().DeleteConversation(ctx, args[0]); err != nil {
				return explain(err)
			}
			if a.cfg.Settings().Chat.LastConversation == args[0] {
				if err := a.cfg.SaveLastConversation(""); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, "✓ Conversation deleted")
			return nil
		},
	})
	return cmd
}

func (a *app) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [budget]",
		Short: "Preview the components considered for a budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			budget := ""
			if len(args) == 1 {
				budget = args[0]
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			preview, err := a.api().CatalogPreview(ctx, budget)
			if err != nil {
				return explain(err)
			}
			renderPreview(a.out, preview)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCollectionsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Inspect and manage vector store collections",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List collections",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), flags, needs{}, func(a *app) error {
					names, err := a.store.ListCollections(cmd.Context())
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(cmd.OutOrStdout(), n)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "describe <name>",
			Short: "Show the schema and size of a collection",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), flags, needs{}, func(a *app) error {
					info, err := a.store.DescribeCollection(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), info)
				})
			},
		},
		newCollectionsGetCmd(flags),
		newCollectionsDropCmd(flags),
	)
	return cmd
}

func newCollectionsGetCmd(flags *globalFlags) *cobra.Command {
	var (
		filterExpr string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the records of a collection without their vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, needs{}, func(a *app) error {
				info, err := a.store.DescribeCollection(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				records, err := a.store.GetAll(cmd.Context(), info.Name, filterExpr, info.Schema.ScalarFields(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().StringVar(&filterExpr, "filter", "", `filter expression, e.g. 'source_type == "web"'`)
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records, 0 for all")
	return cmd
}

func newCollectionsDropCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: "Drop a collection and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %q without --yes", args[0])
			}
			return withApp(cmd.Context(), flags, needs{}, func(a *app) error {
				if err := a.store.DropCollection(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.logger.Info(cmd.Context(), "collection dropped", zap.String("collection", args[0]))
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the drop")
	return cmd
}


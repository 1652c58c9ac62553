package main

import (
	"fmt"

	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/spf13/cobra"
)

func specCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Manage specifications",
	}
	cmd.AddCommand(specAddCmd(opts))
	cmd.AddCommand(specListCmd(opts))
	return cmd
}

func specAddCmd(opts *rootOptions) *cobra.Command {
	var in pipeline.AddSpecificationInput
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a specification directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			in.ProjectID = args[0]
			res, err := a.Pipeline.AddUserSpecification(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, res)
		},
	}
	cmd.Flags().StringVar(&in.Category, "category", "", "specification category")
	cmd.Flags().StringVar(&in.Key, "key", "", "short snake_case identifier")
	cmd.Flags().StringVar(&in.Value, "value", "", "the fact")
	cmd.Flags().StringVar(&in.Content, "content", "", "optional elaboration")
	return cmd
}

func specListCmd(opts *rootOptions) *cobra.Command {
	var category string
	var all bool
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List accepted specifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			filter := model.CurrentOnly()
			if all {
				filter.IsCurrent = nil
			}
			if category != "" {
				filter.Category = model.NormalizeCategory(category)
			}
			items, err := a.Store.Specifications(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no specifications")
				return nil
			}
			for _, s := range items {
				state := "current"
				if !s.IsCurrent {
					state = "superseded"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", s.ID, state, s.Category, s.Key, s.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().BoolVar(&all, "all", false, "include superseded specifications")
	return cmd
}

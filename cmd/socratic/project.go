package main

import (
	"fmt"
	"strings"

	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/model"
	"github.com/spf13/cobra"
)

func projectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(projectCreateCmd(opts))
	cmd.AddCommand(projectListCmd(opts))
	cmd.AddCommand(projectShowCmd(opts))
	return cmd
}

func projectCreateCmd(opts *rootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := a.Counselor.CreateProject(cmd.Context(), counselor.CreateProjectInput{
				Name:        strings.Join(args, " "),
				Description: description,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "short project description")
	return cmd
}

func projectListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := a.Counselor.Projects(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no projects")
				return nil
			}
			for _, p := range items {
				fmt.Fprintf(out, "%s\t%d%%\t%s\n", p.ID, p.MaturityScore, p.Name)
			}
			return nil
		},
	}
}

type projectView struct {
	Project       model.Project      `json:"project"`
	Breakdown     maturity.Breakdown `json:"breakdown"`
	OpenConflicts int                `json:"open_conflicts"`
}

func projectShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its maturity breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			p, err := a.Counselor.Project(ctx, args[0])
			if err != nil {
				return err
			}
			specs, err := a.Store.Specifications(ctx, p.ID, model.CurrentOnly())
			if err != nil {
				return err
			}
			open, err := a.Store.CountOpenConflicts(ctx, p.ID)
			if err != nil {
				return err
			}
			view := projectView{Project: p, Breakdown: a.Scorer.Breakdown(specs), OpenConflicts: open}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, view)
			}
			fmt.Fprintf(out, "%s (%s)\nmaturity %d%%, %d open conflicts\n\n", p.Name, p.ID, p.MaturityScore, open)
			for _, c := range view.Breakdown.Categories {
				fmt.Fprintf(out, "%s\t%d specs\t%.1f/%.0f\n", c.Category, c.Count, c.Capped, c.Target)
			}
			return nil
		},
	}
}

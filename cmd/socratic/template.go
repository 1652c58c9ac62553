package main

import (
	"fmt"

	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/spf13/cobra"
)

func templateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Work with specification templates",
	}
	cmd.AddCommand(templateListCmd(opts))
	cmd.AddCommand(templateApplyCmd(opts))
	return cmd
}

func templateListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and local templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			items := a.Templates.List()
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			for _, t := range items {
				fmt.Fprintf(out, "%s\t%d items\t%s\n", t.Name, len(t.Items), t.Description)
			}
			return nil
		},
	}
}

func templateApplyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <project-id> <template>",
		Short: "Apply a template to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := a.Pipeline.ApplyTemplate(cmd.Context(), pipeline.ApplyTemplateInput{
				ProjectID: args[0],
				Template:  args[1],
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts, res)
		},
	}
}

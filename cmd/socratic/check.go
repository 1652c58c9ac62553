package main

import (
	"fmt"
	"strings"

	"github.com/metalagman/socratic/internal/model"
	"github.com/spf13/cobra"
)

func checkQuestionCmd(opts *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "check-question <question>",
		Short: "Score a question for biased phrasing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			res := a.Counselor.CheckQuestion(strings.Join(args, " "), model.NormalizeCategory(category))
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			verdict := "ok"
			if res.Blocked {
				verdict = "blocked"
			}
			fmt.Fprintf(out, "%s: bias score %.2f\n", verdict, res.Score)
			for _, t := range res.Types {
				fmt.Fprintf(out, "type\t%s\n", t)
			}
			for _, s := range res.Suggestions {
				fmt.Fprintf(out, "try\t%s\n", s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category used for suggested rephrasings")
	return cmd
}

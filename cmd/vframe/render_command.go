package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/vframe/internal/project"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var input, outputDir string
	var thenQueue bool

	cmd := &cobra.Command{
		Use:   "render [project.yaml]",
		Short: "Render every tab of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj := project.Default()
			if len(args) == 1 {
				p, err := project.Read(args[0])
				if err != nil {
					return err
				}
				proj = p
			}
			if strings.TrimSpace(input) != "" {
				proj.Input = input
			}
			if strings.TrimSpace(outputDir) != "" {
				proj.OutputDir = outputDir
			}

			svc, err := ctx.service(cmd.Context(), func(int) bool { return thenQueue })
			if err != nil {
				return err
			}
			svc.SetProject(proj)
			if err := svc.RenderNow(cmd.Context()); err != nil {
				return err
			}
			if err := svc.WaitIdle(cmd.Context()); err != nil {
				svc.StopQueue()
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Render finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input video (overrides the project input)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory (overrides the project)")
	cmd.Flags().BoolVar(&thenQueue, "then-queue", false, "Run the batch queue after the render when it has batches")
	return cmd
}

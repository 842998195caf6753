package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/vframe/internal/batch"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/project"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage batch render queues",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRunCommand(ctx))
	queueCmd.AddCommand(newQueueUseCommand(ctx))
	queueCmd.AddCommand(newQueueQueuesCommand(ctx))

	return queueCmd
}

// withQueue selects the named queue (or keeps the global one) before fn runs.
func withQueue(ctx *commandContext, name string, fn func(*batch.Manager) error) error {
	if err := ctx.ensure(); err != nil {
		return err
	}
	if name != "" {
		if err := ctx.queues.Switch(name); err != nil {
			return err
		}
	}
	return fn(ctx.queues)
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var name, output, audio, queue, primary string
	var secondary []string

	cmd := &cobra.Command{
		Use:   "add <input>",
		Short: "Add a video file or folder as a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("batch input: %w", err)
			}
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("--output is required")
			}
			if output, err = filepath.Abs(output); err != nil {
				return err
			}
			if audio != "" {
				if fi, err := os.Stat(audio); err != nil || !fi.IsDir() {
					return fmt.Errorf("audio folder %s is not a directory", audio)
				}
			}
			if name == "" {
				name = filepath.Base(input)
			}

			return withQueue(ctx, queue, func(m *batch.Manager) error {
				b := batch.NewBatch(name, input, output)
				b.AudioFolder = audio
				if pool := (mediapool.Pool{Primary: primary, Secondary: secondary}); pool.Enabled() {
					b.MediaPool = &pool
				}
				added := m.Queue().Add(b)
				fmt.Fprintf(cmd.OutOrStdout(), "Added batch %s (%s) to queue %s\n", added.Name, added.ID, m.Current())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Batch name (default: input base name)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output folder")
	cmd.Flags().StringVarP(&audio, "audio", "a", "", "Replace audio with tracks from this folder")
	cmd.Flags().StringVar(&primary, "pool-primary", "", "Media pool item for the first tab")
	cmd.Flags().StringSliceVar(&secondary, "pool-secondary", nil, "Media pool items for the other tabs")
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Queue name (default: current)")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the batches of a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(ctx, queue, func(m *batch.Manager) error {
				st := m.Queue().Snapshot()
				out := cmd.OutOrStdout()
				if len(st.Batches) == 0 {
					fmt.Fprintf(out, "Queue %s is empty\n", m.Current())
					return nil
				}
				rows := make([][]string, 0, len(st.Batches))
				for i, b := range st.Batches {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						b.ID,
						b.Name,
						string(b.Status),
						b.InputPath,
						b.OutputFolder,
						b.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "ID", "Name", "Status", "Input", "Output", "Error"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Queue name (default: current)")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove batches by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(ctx, queue, func(m *batch.Manager) error {
				for _, id := range args {
					if err := m.Queue().Remove(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Queue name (default: current)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(ctx, queue, func(m *batch.Manager) error {
				if err := m.Queue().Clear(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared queue %s\n", m.Current())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Queue name (default: current)")
	return cmd
}

func newQueueRunCommand(ctx *commandContext) *cobra.Command {
	var queue, projectPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render every batch in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(ctx, queue, func(m *batch.Manager) error {
				svc, err := ctx.service(cmd.Context(), nil)
				if err != nil {
					return err
				}
				if projectPath != "" {
					p, err := project.Read(projectPath)
					if err != nil {
						return err
					}
					svc.SetProject(p)
				}
				sum, err := svc.RunQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s finished: %d completed, %d failed, %d total\n",
					m.Current(), sum.Completed, sum.Errors, sum.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Queue name (default: current)")
	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project file used as the template for every batch")
	return cmd
}

func newQueueUseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the current queue",
		Long:  "Makes <name> the queue used by later queue commands. \"global\" selects the default queue.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			if err := ctx.queues.Switch(args[0]); err != nil {
				return err
			}
			if err := ctx.saveCurrentQueue(); err != nil {
				return err
			}
			path, _ := ctx.queues.PathFor(ctx.queues.Current())
			fmt.Fprintf(cmd.OutOrStdout(), "Using queue %s (%d batches) at %s\n", ctx.queues.Current(), ctx.queues.Queue().Len(), path)
			return nil
		},
	}
}

func newQueueQueuesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List the queue files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			names, err := ctx.queues.List()
			if err != nil {
				return err
			}
			store := batch.NewStore(nil)
			rows := make([][]string, 0, len(names)+1)
			for _, n := range append([]string{batch.GlobalQueue}, names...) {
				path, err := ctx.queues.PathFor(n)
				if err != nil {
					continue
				}
				marker := ""
				if n == ctx.queues.Current() {
					marker = "*"
				}
				rows = append(rows, []string{marker, n, strconv.Itoa(len(store.Load(path).Batches))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", "Queue", "Batches"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

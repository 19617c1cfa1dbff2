// Record commands: add, list, show, update, done, undone, delete, move,
// clear, stats.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

func addExtensionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("due", "", "due date (YYYY-MM-DD)")
	f.String("priority", "", "priority label")
	f.String("category", "", "category")
	f.StringSlice("tag", nil, "tag (repeatable or comma-separated)")
	f.String("color", "", "display color")
	f.String("notes", "", "free-form notes")
}

func newAddCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a task at the end of the list",
		Args:  args(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ext := types.Extensions{
				DueDate:  optionalString(cmd, "due"),
				Priority: optionalString(cmd, "priority"),
				Category: optionalString(cmd, "category"),
				Color:    optionalString(cmd, "color"),
				Notes:    optionalString(cmd, "notes"),
			}
			if cmd.Flags().Changed("tag") {
				ext.Tags, _ = cmd.Flags().GetStringSlice("tag")
			}
			return withStore(cmd, flags, func(s *session) error {
				rec, err := s.store.Create(strings.Join(a, " "), ext)
				if err != nil {
					return err
				}
				return emit(cmd, flags, rec, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s\n", rec.ID)
				})
			})
		},
	}
	addExtensionFlags(cmd)
	return cmd
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		completed, pending bool
		q                  types.Query
		category, priority string
		sort               string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks in position order, optionally filtered and sorted.

Sort modes: manual, due_asc, due_desc, created_asc, created_desc.

Example:
  taskpad list --pending --tag work
  taskpad list --sort due_asc --due-before 2025-12-31`,
		Args: args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if completed && pending {
				return usageError{fmt.Errorf("--completed and --pending are mutually exclusive")}
			}
			if completed || pending {
				q.Completed = &completed
			}
			if cmd.Flags().Changed("category") {
				q.Category = &category
			}
			if cmd.Flags().Changed("priority") {
				q.Priority = &priority
			}
			mode, err := types.ParseSortMode(sort)
			if err != nil {
				return err
			}
			q.Sort = mode

			return withStore(cmd, flags, func(s *session) error {
				var records []types.Record
				if q.Sort == types.SortManual && q.Text == "" && q.DueBefore == "" && q.DueAfter == "" && q.Limit == 0 {
					records = s.store.Read(q.Filter)
				} else {
					records, err = s.store.Query(cmd.Context(), q)
					if err != nil {
						return err
					}
				}
				return emit(cmd, flags, records, func(w io.Writer) {
					if len(records) == 0 {
						fmt.Fprintln(w, "No tasks")
						return
					}
					for _, r := range records {
						fmt.Fprintln(w, formatRecord(r))
					}
				})
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&completed, "completed", false, "only completed tasks")
	f.BoolVar(&pending, "pending", false, "only pending tasks")
	f.StringVar(&category, "category", "", "filter by category")
	f.StringVar(&priority, "priority", "", "filter by priority")
	f.StringVar(&q.Tag, "tag", "", "filter by tag")
	f.StringVar(&q.Text, "search", "", "case-insensitive text search")
	f.StringVar(&q.DueBefore, "due-before", "", "due on or before this date")
	f.StringVar(&q.DueAfter, "due-after", "", "due on or after this date")
	f.StringVar(&sort, "sort", "", "sort mode")
	f.IntVar(&q.Limit, "limit", 0, "maximum number of tasks (0 for all)")
	return cmd
}

func newShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Display a task with full details",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return withStore(cmd, flags, func(s *session) error {
				rec, err := s.store.Get(a[0])
				if err != nil {
					return err
				}
				return emit(cmd, flags, rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}
}

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Long: `Change fields of a task. Only the flags given are changed; every other
field keeps its value. An empty value clears an optional field, for example
--due "".`,
		Args: args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			updates := types.Updates{}
			if v := optionalString(cmd, "text"); v != nil {
				updates[types.FieldText] = *v
			}
			for flag, field := range map[string]string{
				"due":      types.FieldDueDate,
				"priority": types.FieldPriority,
				"category": types.FieldCategory,
				"color":    types.FieldColor,
				"notes":    types.FieldNotes,
			} {
				if v := optionalString(cmd, flag); v != nil {
					if *v == "" {
						updates[field] = nil
					} else {
						updates[field] = *v
					}
				}
			}
			if cmd.Flags().Changed("tag") {
				tags, _ := cmd.Flags().GetStringSlice("tag")
				updates[types.FieldTags] = tags
			}
			if len(updates) == 0 {
				return usageError{fmt.Errorf("nothing to update")}
			}
			return withStore(cmd, flags, func(s *session) error {
				if err := s.store.Update(a[0], updates); err != nil {
					return err
				}
				rec, err := s.store.Get(a[0])
				if err != nil {
					return err
				}
				return emit(cmd, flags, rec, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s\n", rec.ID)
				})
			})
		},
	}
	cmd.Flags().String("text", "", "new text")
	addExtensionFlags(cmd)
	return cmd
}

func newDoneCmd(flags *rootFlags, done bool) *cobra.Command {
	use, short, verb := "done <id>", "Mark a task completed", "Completed"
	if !done {
		use, short, verb = "undone <id>", "Mark a task pending", "Reopened"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return withStore(cmd, flags, func(s *session) error {
				if err := s.store.Update(a[0], types.Updates{types.FieldCompleted: done}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, a[0])
				return nil
			})
		},
	}
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return withStore(cmd, flags, func(s *session) error {
				if err := s.store.Delete(a[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", a[0])
				return nil
			})
		},
	}
}

func newMoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a task to a new position",
		Args:  args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, a []string) error {
			pos, err := strconv.Atoi(a[1])
			if err != nil {
				return fmt.Errorf("%w: position %q is not a number", types.ErrInvalidArgument, a[1])
			}
			return withStore(cmd, flags, func(s *session) error {
				if err := s.store.Reorder(a[0], pos); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s\n", a[0])
				return nil
			})
		},
	}
}

func newClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all completed tasks",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, flags, func(s *session) error {
				n, err := s.store.ClearCompleted()
				if err != nil {
					return err
				}
				return emit(cmd, flags, map[string]int{"removed": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %d completed tasks\n", n)
				})
			})
		},
	}
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, flags, func(s *session) error {
				st := s.store.Stats()
				return emit(cmd, flags, st, func(w io.Writer) {
					fmt.Fprintf(w, "Total:     %d\nCompleted: %d\nPending:   %d\n", st.Total, st.Completed, st.Pending)
				})
			})
		},
	}
}

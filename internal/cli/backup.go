package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newBackupCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore backups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Save pending changes and copy the data file to the backup directory",
			Args:  args(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, flags, func(s *session) error {
					path, err := s.store.Backup()
					if err != nil {
						return sysErr(err)
					}
					return emit(cmd, flags, map[string]string{"path": path}, func(w io.Writer) {
						fmt.Fprintf(w, "Backup created: %s\n", path)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backups, newest first",
			Args:  args(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, flags, func(s *session) error {
					list, err := s.store.Backups()
					if err != nil {
						return sysErr(err)
					}
					return emit(cmd, flags, list, func(w io.Writer) {
						if len(list) == 0 {
							fmt.Fprintln(w, "No backups")
							return
						}
						for _, b := range list {
							fmt.Fprintf(w, "%s  %s  %d bytes\n", b.Name, b.Time.Format("2006-01-02 15:04:05"), b.Size)
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "restore <name|path>",
			Short: "Replace all tasks with the contents of a backup",
			Long: `Replace all tasks with the contents of a backup. A relative name is
looked up in the backup directory; an absolute path is read as given.`,
			Args:  args(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, a []string) error {
				return withStore(cmd, flags, func(s *session) error {
					if err := s.store.RestoreFromBackup(a[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Restored %d tasks from %s\n", s.store.Stats().Total, a[0])
					return nil
				})
			},
		},
	)
	return cmd
}

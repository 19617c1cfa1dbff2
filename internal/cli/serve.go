package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/taskpad/internal/httpapi"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task list over HTTP",
		Long:  "Serve the task list over HTTP until interrupted. Pending changes are saved on exit.",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(cmd, flags, func(s *session) error {
				addr := s.cfg.Listen
				if listen != "" {
					addr = listen
				}
				s.store.OnError(func(err error) {
					s.logger.WithError(err).Error("background save failed")
				})
				return sysErr(httpapi.New(s.store, s.logger).Serve(ctx, addr))
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

package cmd

import (
	"fmt"

	"briefly-server/events"
	"briefly-server/services"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending group requests once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			requests := services.NewRequestService(b.db, b.cfg.Requests.Timeout, events.Nop{}, b.log)
			n, err := requests.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d request(s)\n", n)
			return nil
		},
	}
}

package cmd

import "github.com/spf13/cobra"

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()
			b.log.Info("Migrations applied")
			return nil
		},
	}
}

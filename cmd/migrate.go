package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables and seed the admin user",
	RunE: func(_ *cobra.Command, _ []string) error {
		c, err := buildContainer(nil)
		if err != nil {
			return err
		}
		defer closeContainer(c)

		if err := migrate(c); err != nil {
			return err
		}
		fmt.Println("✓ Database migrated")
		return nil
	},
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
)

var cronjobCmd = &cobra.Command{
	Use:   "cronjob",
	Short: "Manage saving plan cron jobs",
}

func init() {
	cronjobCmd.AddCommand(cronjobDeleteCmd)
	cronjobCmd.AddCommand(cronjobRunCmd)
}

func parsePlanID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid plan id %q", arg)
	}
	return uint(id), nil
}

var cronjobDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan's cron job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := parsePlanID(args[0])
		if err != nil {
			return err
		}
		c, err := buildContainer(nil)
		if err != nil {
			return err
		}
		defer closeContainer(c)

		if err := c.SavingPlans().Unschedule(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("✓ Deleted cron job of plan %d\n", id)
		return nil
	},
}

var cronjobRunCmd = &cobra.Command{
	Use:   "run <plan-id>",
	Short: "Run a plan's cron job once",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := parsePlanID(args[0])
		if err != nil {
			return err
		}
		c, err := buildContainer(nil)
		if err != nil {
			return err
		}
		defer closeContainer(c)

		if err := c.SavingPlans().RunNow(context.Background(), id); err != nil {
			if errors.Is(err, cronjobs.ErrLocked) {
				return fmt.Errorf("plan %d is already running elsewhere", id)
			}
			return err
		}
		fmt.Printf("✓ Ran cron job of plan %d\n", id)
		return nil
	},
}

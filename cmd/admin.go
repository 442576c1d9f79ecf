package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/models"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin users",
}

func init() {
	adminCmd.AddCommand(adminHashCmd)
	adminCmd.AddCommand(adminSetPasswordCmd)
	rootCmd.AddCommand(adminCmd)
}

var adminHashCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print the bcrypt hash of a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("generate hash: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

var adminRole string

var adminSetPasswordCmd = &cobra.Command{
	Use:   "set-password <username> <password>",
	Short: "Create an admin user or reset its password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildContainer(nil)
		if err != nil {
			return err
		}
		defer closeContainer(c)

		created, err := setAdminPassword(c.DB(), args[0], args[1], adminRole)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created admin user %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated password of %s\n", args[0])
		}
		return nil
	},
}

func init() {
	adminSetPasswordCmd.Flags().StringVar(&adminRole, "role", "admin", "Role for newly created users")
}

// setAdminPassword creates the user when missing and reports whether it did
func setAdminPassword(db *gorm.DB, username, password, role string) (bool, error) {
	if len(password) < 8 {
		return false, errors.New("password must be at least 8 characters")
	}

	var user models.AdminUser
	err := db.Where("username = ?", username).First(&user).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		return false, err
	}
	if created {
		user = models.AdminUser{Username: username, Role: role, IsActive: true}
	}

	if err := user.SetPassword(password); err != nil {
		return false, err
	}
	if err := db.Save(&user).Error; err != nil {
		return false, fmt.Errorf("save admin user: %w", err)
	}
	return created, nil
}

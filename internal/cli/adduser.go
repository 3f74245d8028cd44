package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/model"
	"github.com/iliyamo/library-loans/internal/repository"
)

var (
	addUsername string
	addPassword string
	addRole     string
)

var adduserCmd = &cobra.Command{
	Use:   "adduser",
	Short: "Create a user, e.g. the first admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateNewUser(addUsername, addPassword, addRole); err != nil {
			return err
		}
		rt, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = rt.log.Sync() }()

		db, err := rt.openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		u, err := repository.NewUserRepo(db).Create(cmd.Context(), addUsername, addPassword, addRole, rt.cfg.BcryptCost)
		if err != nil {
			return err
		}
		rt.log.Info("user created", zap.Int64("id", u.ID), zap.String("username", u.Username), zap.String("role", u.Role))
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %q with id %d\n", u.Role, u.Username, u.ID)
		return nil
	},
}

func init() {
	f := adduserCmd.Flags()
	f.StringVar(&addUsername, "username", "", "login name")
	f.StringVar(&addPassword, "password", "", "initial password")
	f.StringVar(&addRole, "role", model.RoleMember, "admin or member")
	_ = adduserCmd.MarkFlagRequired("username")
	_ = adduserCmd.MarkFlagRequired("password")
}

func validateNewUser(username, password, role string) error {
	var errs []error
	if username == "" {
		errs = append(errs, errors.New("--username must not be empty"))
	}
	if password == "" {
		errs = append(errs, errors.New("--password must not be empty"))
	}
	if !model.ValidRole(role) {
		errs = append(errs, fmt.Errorf("--role must be %q or %q", model.RoleAdmin, model.RoleMember))
	}
	return errors.Join(errs...)
}

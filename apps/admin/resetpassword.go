package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword -u USERNAME|EMAIL",
		Short: "Reset a user's password; the new password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usr, err := cli.usrSvc.GetByUsernameOrEmail(cmd.Context(), uname)
			if err != nil {
				return err
			}
			pwd, err := cli.promptPassword("Enter password")
			if err != nil {
				return err
			}
			if err = usr.SetPassword(pwd); err != nil {
				return errors.Wrap(err, "setting password")
			}
			if _, err = cli.usrRepo.UpdateUser(cmd.Context(), usr); err != nil {
				return errors.Wrap(err, "updating user")
			}
			cli.printf("password updated for %s\n", uname)
			return nil
		},
	}
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

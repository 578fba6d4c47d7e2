package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/darasa/core/user"
)

func (cli *commandLine) approveCmd() *cobra.Command {
	var reviewerName, rejectReason string
	cmd := &cobra.Command{
		Use:   "approve USERNAME|EMAIL",
		Short: "Approve (or reject with --reject) a pending onboarding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var reviewer user.User
			if reviewerName != "" {
				var err error
				if reviewer, err = cli.usrSvc.GetByUsernameOrEmail(ctx, reviewerName); err != nil {
					return errors.Wrap(err, "getting reviewer")
				}
				if !reviewer.IsAdmin() {
					return errors.Errorf("%s is not an admin", reviewerName)
				}
			}

			usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, args[0])
			if err != nil {
				return err
			}

			if rejectReason != "" {
				ro := user.RejectOnboarding{Reason: rejectReason}
				if err = ro.Validate(cli.validate); err != nil {
					return cli.describe(err)
				}
				if _, err = cli.usrSvc.RejectOnboarding(ctx, reviewer, usr.ID, ro); err != nil {
					return cli.describe(err)
				}
				cli.printf("onboarding of %s rejected\n", args[0])
				return nil
			}

			if _, err = cli.usrSvc.ApproveOnboarding(ctx, reviewer, usr.ID); err != nil {
				return cli.describe(err)
			}
			cli.printf("onboarding of %s approved\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewerName, "by", "", "username or email of the reviewing admin")
	cmd.Flags().StringVar(&rejectReason, "reject", "", "reject the application with this reason")
	return cmd
}

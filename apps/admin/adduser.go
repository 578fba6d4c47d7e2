package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type addUserOptions struct {
	name, uname, email      string
	admin, teacher, student bool
}

func (o addUserOptions) roles() []string {
	switch {
	case o.admin:
		return []string{user.RoleAdmin}
	case o.teacher:
		return []string{user.RoleTeacher}
	case o.student:
		return []string{user.RoleStudent}
	}
	return nil
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var opts addUserOptions
	cmd := &cobra.Command{
		Use:   "adduser -u USERNAME -e EMAIL [--admin|--teacher|--student]",
		Short: "Create a user, or update the password and role of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.uname == "" && opts.email == "" {
				return errors.New("either --username or --email is required")
			}
			pwd, err := cli.promptPassword("Enter password")
			if err != nil {
				return err
			}
			usr, created, err := cli.addUser(cmd.Context(), opts, pwd)
			if err != nil {
				return cli.describe(err)
			}
			if created {
				cli.printf("user %s created\n", usr.ID)
			} else {
				cli.printf("user %s updated\n", usr.ID)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.uname, "username", "u", "", "username")
	flags.StringVarP(&opts.email, "email", "e", "", "email address")
	flags.StringVarP(&opts.name, "name", "n", "", "full name (defaults to the username)")
	flags.BoolVar(&opts.admin, "admin", false, "grant the admin role")
	flags.BoolVar(&opts.teacher, "teacher", false, "grant the teacher role")
	flags.BoolVar(&opts.student, "student", false, "grant the student role (default for new users)")
	cmd.MarkFlagsMutuallyExclusive("admin", "teacher", "student")
	return cmd
}

// addUser updates or creates a user.User. Users it touches are active and approved.
func (cli *commandLine) addUser(ctx context.Context, opts addUserOptions, pwd string) (user.User, bool, error) {
	uname := core.CleanString(opts.uname, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, false, errors.Wrap(err, "getting user")
		}

		nu := user.NewUser{
			Name:            opts.name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           opts.roles(),
		}
		if nu.Name == "" {
			nu.Name = uname
		}
		if len(nu.Roles) == 0 {
			nu.Roles = []string{user.RoleStudent}
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return user.User{}, false, err
		}
		usr, err = cli.usrSvc.Create(ctx, nu)
		return usr, true, err
	}

	if roles := opts.roles(); len(roles) > 0 {
		usr.Roles = roles
	}
	if opts.name != "" {
		usr.Name = core.CleanString(opts.name)
	}
	usr.SetActive(true)
	if usr.Onboarding.Status != user.OnboardingApproved {
		now := core.NowFunc()
		usr.Onboarding = user.Onboarding{Status: user.OnboardingApproved, ReviewedAt: &now}
	}
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, false, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	return usr, false, errors.Wrap(err, "updating user")
}

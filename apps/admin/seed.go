package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

type (
	seedFile struct {
		Users   []seedUser   `yaml:"users"`
		Courses []seedCourse `yaml:"courses"`
		Coupons []seedCoupon `yaml:"coupons"`
	}

	seedUser struct {
		Name     string   `yaml:"name"`
		Username string   `yaml:"username"`
		Email    string   `yaml:"email"`
		Password string   `yaml:"password"`
		Roles    []string `yaml:"roles"` // admin | teacher | student
		Bio      string   `yaml:"bio"`
	}

	seedCourse struct {
		Title       string     `yaml:"title"`
		Description string     `yaml:"description"`
		Category    string     `yaml:"category"`
		Level       string     `yaml:"level"`
		Price       int64      `yaml:"price"`
		Currency    string     `yaml:"currency"`
		Teacher     string     `yaml:"teacher"` // username or email
		Status      string     `yaml:"status"`
		Capacity    int        `yaml:"capacity"`
		StartsAt    *time.Time `yaml:"starts_at"`
		EndsAt      *time.Time `yaml:"ends_at"`
		Modules     []string   `yaml:"modules"`
	}

	seedCoupon struct {
		Code           string     `yaml:"code"`
		Description    string     `yaml:"description"`
		PercentOff     int        `yaml:"percent_off"`
		AmountOff      int64      `yaml:"amount_off"`
		MaxRedemptions int        `yaml:"max_redemptions"`
		ExpiresAt      *time.Time `yaml:"expires_at"`
	}

	seedStats struct {
		users, courses, coupons, skipped int
	}
)

var seedRoles = map[string]string{
	"admin":   user.RoleAdmin,
	"teacher": user.RoleTeacher,
	"student": user.RoleStudent,
}

func (cli *commandLine) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE.yaml",
		Short: "Load users, courses and coupons from a YAML file",
		Long: `Load users, courses and coupons from a YAML file.

Users are matched on username or email, courses on title and teacher,
coupons on code; records that already exist are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening seed file")
			}
			defer f.Close()

			var data seedFile
			dec := yaml.NewDecoder(f)
			dec.KnownFields(true)
			if err = dec.Decode(&data); err != nil {
				return errors.Wrap(err, "parsing seed file")
			}

			stats, err := cli.seed(cmd.Context(), data)
			if err != nil {
				return err
			}
			cli.printf("seeded %d users, %d courses and %d coupons (%d skipped)\n",
				stats.users, stats.courses, stats.coupons, stats.skipped)
			return nil
		},
	}
}

func (cli *commandLine) seed(ctx context.Context, data seedFile) (seedStats, error) {
	var stats seedStats

	for i, su := range data.Users {
		created, err := cli.seedUser(ctx, su)
		if err != nil {
			return stats, errors.Wrapf(cli.describe(err), "users[%d]", i)
		}
		if created {
			stats.users++
		} else {
			stats.skipped++
		}
	}

	for i, sc := range data.Courses {
		created, err := cli.seedCourse(ctx, sc)
		if err != nil {
			return stats, errors.Wrapf(cli.describe(err), "courses[%d]", i)
		}
		if created {
			stats.courses++
		} else {
			stats.skipped++
		}
	}

	for i, sc := range data.Coupons {
		created, err := cli.seedCoupon(ctx, sc)
		if err != nil {
			return stats, errors.Wrapf(cli.describe(err), "coupons[%d]", i)
		}
		if created {
			stats.coupons++
		} else {
			stats.skipped++
		}
	}
	return stats, nil
}

func (cli *commandLine) seedUser(ctx context.Context, su seedUser) (bool, error) {
	nu := user.NewUser{
		Name:            su.Name,
		Username:        su.Username,
		Email:           su.Email,
		Password:        su.Password,
		PasswordConfirm: su.Password,
		Bio:             su.Bio,
	}
	for _, name := range su.Roles {
		role, ok := seedRoles[core.CleanString(name, true /* lower */)]
		if !ok {
			return false, errors.Errorf("unknown role %q", name)
		}
		nu.Roles = append(nu.Roles, role)
	}

	err := nu.Validate(ctx, cli.validate, cli.usrSvc)
	if isDuplicateUser(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = cli.usrSvc.Create(ctx, nu)
	return err == nil, err
}

func isDuplicateUser(err error) bool {
	if ve, ok := errors.Cause(err).(*core.ValidationError); ok {
		err = ve.Err
	}
	switch errors.Cause(err) {
	case user.ErrUsernameExists, user.ErrEmailExists, user.ErrUserExists:
		return true
	}
	return false
}

func (cli *commandLine) seedCourse(ctx context.Context, sc seedCourse) (bool, error) {
	teacher, err := cli.usrSvc.GetByUsernameOrEmail(ctx, sc.Teacher)
	if err != nil {
		return false, errors.Wrapf(err, "getting teacher %q", sc.Teacher)
	}

	nc := course.NewCourse{
		Title:       sc.Title,
		Description: sc.Description,
		Category:    sc.Category,
		Level:       sc.Level,
		Price:       sc.Price,
		Currency:    sc.Currency,
		Status:      sc.Status,
		Capacity:    sc.Capacity,
		StartsAt:    sc.StartsAt,
		EndsAt:      sc.EndsAt,
	}
	if err = nc.Validate(cli.validate); err != nil {
		return false, err
	}

	existing, err := cli.courseSvc.ListAll(ctx, query.New(course.Schema).
		Where("teacher_id", query.Eq, teacher.ID).
		Where("title", query.Eq, nc.Title))
	if err != nil {
		return false, errors.Wrap(err, "listing courses")
	}
	if len(existing) > 0 {
		return false, nil
	}

	c, err := cli.courseSvc.Create(ctx, teacher, nc)
	if err != nil {
		return false, err
	}
	for _, title := range sc.Modules {
		nm := course.NewModule{Title: title}
		if err = nm.Validate(cli.validate); err != nil {
			return false, err
		}
		if _, err = cli.courseSvc.AddModule(ctx, teacher, c.ID, nm); err != nil {
			return false, errors.Wrapf(err, "adding module %q", title)
		}
	}
	return true, nil
}

func (cli *commandLine) seedCoupon(ctx context.Context, sc seedCoupon) (bool, error) {
	nc := enrollment.NewCoupon{
		Code:           sc.Code,
		Description:    sc.Description,
		PercentOff:     sc.PercentOff,
		AmountOff:      sc.AmountOff,
		MaxRedemptions: sc.MaxRedemptions,
		ExpiresAt:      sc.ExpiresAt,
	}
	if err := nc.Validate(cli.validate); err != nil {
		return false, err
	}

	_, err := cli.enrollSvc.GetCoupon(ctx, nc.Code)
	if err == nil {
		return false, nil
	}
	if !core.IsNotFound(err) {
		return false, errors.Wrap(err, "getting coupon")
	}
	_, err = cli.enrollSvc.CreateCoupon(ctx, nc)
	return err == nil, err
}

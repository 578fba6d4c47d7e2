package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

const pwd = "Sup3r$ecret!"

func setup(t *testing.T) (*testutil.Env, *commandLine, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	cli := &commandLine{
		usrRepo:    env.UserRepo,
		usrSvc:     env.UserSvc,
		courseSvc:  env.CourseSvc,
		enrollSvc:  env.EnrollSvc,
		validate:   env.Validate,
		translator: env.Translator,
		out:        out,
	}
	return env, cli, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		assert.ErrorContains(t, err, tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

// mockPassword makes the password prompt return pwd.
func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_root(t *testing.T) {
	_, cli, out := setup(t)

	require.NoError(t, cli.run(context.Background(), nil))
	assert.Contains(t, out.String(), "resetpassword")

	err := cli.run(context.Background(), []string{"lol"})
	assert.ErrorContains(t, err, `unknown command "lol"`)
}

func Test_commandLine_migrate(t *testing.T) {
	_, cli, _ := setup(t)

	err := cli.run(context.Background(), []string{"migrate", "up"})
	assert.EqualError(t, err, "migrations need the postgres database engine")

	cli.db = new(sql.DB)

	var ran []string
	orig := gooseRunFunc
	gooseRunFunc = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { gooseRunFunc = orig })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(context.Background(), tt.args))
		})
	}
	assert.Len(t, ran, 11)
}

func Test_commandLine_resetPassword(t *testing.T) {
	env, cli, _ := setup(t)

	usr := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no username", args: []string{"resetpassword"}, wantErrStr: `required flag(s) "username" not set`},
		{name: "user not found", args: []string{"resetpassword", "-u", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "empty password", args: []string{"resetpassword", "-u", usr.Username}, wantErr: errEmptyPassword},
		{name: "reset with username", args: []string{"resetpassword", "-u", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var newPwd string
			if ex, ok := tt.extra.(extra); ok {
				newPwd = ex.pwd
			}
			mockPassword(t, newPwd)

			err := cli.run(context.Background(), tt.args)
			tt.check(t, err)
			if err != nil {
				return
			}
			got, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, got.CheckPassword(newPwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	env, cli, _ := setup(t)
	ctx := context.Background()

	pending := testutil.CreatePendingUser(t, env.UserRepo, "Pending", "pend", "pend@test.cd", "mdr", []string{user.RoleTeacher})

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no identity", args: []string{"adduser", "--admin"}, extra: extra{pwd: pwd}, wantErrStr: "either --username or --email is required"},
		{name: "many roles", args: []string{"adduser", "-u", "bob", "--admin", "--teacher"}, extra: extra{pwd: pwd}, wantErrStr: "none of the others can be"},
		{name: "no password", args: []string{"adduser", "-u", "bob"}, wantErr: errEmptyPassword},
		{name: "weak password", args: []string{"adduser", "-u", "bob"}, extra: extra{pwd: "12345678"}, wantErrStr: "invalid input: password:"},
		{name: "bad email", args: []string{"adduser", "-u", "bob", "-e", "bob@"}, extra: extra{pwd: pwd}, wantErrStr: "invalid input: email:"},
		{name: "create", args: []string{"adduser", "-u", " Bob ", "-e", "BOB@test.cd", "-n", "Bob", "--teacher"}, extra: extra{pwd: pwd}},
		{name: "update pending", args: []string{"adduser", "-e", pending.Email, "--admin"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var newPwd string
			if ex, ok := tt.extra.(extra); ok {
				newPwd = ex.pwd
			}
			mockPassword(t, newPwd)
			tt.check(t, cli.run(ctx, tt.args))
		})
	}

	t.Run("created", func(t *testing.T) {
		bob, err := env.UserSvc.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "bob@test.cd", bob.Email)
		assert.Equal(t, "Bob", bob.Name)
		assert.Equal(t, []string{user.RoleTeacher}, bob.Roles)
		assert.True(t, bob.IsApproved())
		assert.NoError(t, bob.CheckPassword(pwd))
	})

	t.Run("updated", func(t *testing.T) {
		got, err := env.UserSvc.GetByID(ctx, pending.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAdmin())
		assert.True(t, got.IsApproved())
		assert.Equal(t, "Pending", got.Name)
		assert.NoError(t, got.CheckPassword("lmao"))
	})
}

func Test_commandLine_approve(t *testing.T) {
	env, cli, _ := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "mdr", []string{user.RoleAdmin}, true)
	teacher := testutil.CreatePendingUser(t, env.UserRepo, "Teacher", "teach", "teach@test.cd", "mdr", []string{user.RoleTeacher})
	other := testutil.CreatePendingUser(t, env.UserRepo, "Other", "other", "other@test.cd", "mdr", []string{user.RoleTeacher})

	tests := []cliTest{
		{name: "no args", args: []string{"approve"}, wantErrStr: "accepts 1 arg(s), received 0"},
		{name: "unknown user", args: []string{"approve", "lol"}, wantErr: user.ErrNotFound},
		{name: "reviewer must be an admin", args: []string{"approve", "teach", "--by", "other"}, wantErrStr: "other is not an admin"},
		{name: "approve", args: []string{"approve", "teach", "--by", "admin"}},
		{name: "already reviewed", args: []string{"approve", "teach@test.cd"}, wantErrStr: "onboarding has already been reviewed"},
		{name: "reject needs a real reason", args: []string{"approve", "other", "--reject", "  "}, wantErrStr: "invalid input: reason:"},
		{name: "reject", args: []string{"approve", "other", "--reject", "Missing credentials"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(ctx, tt.args))
		})
	}

	got, err := env.UserSvc.GetByID(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, user.OnboardingApproved, got.Onboarding.Status)
	assert.Equal(t, admin.ID, got.Onboarding.ReviewedBy)

	got, err = env.UserSvc.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, user.OnboardingRejected, got.Onboarding.Status)
	assert.Equal(t, "Missing credentials", got.Onboarding.Reason)

	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, teacher.Email, msgs[0].To[0].Address)
	assert.Equal(t, other.Email, msgs[1].To[0].Address)
}

const seedYAML = `
users:
  - name: Ada Lovelace
    username: ada
    email: ada@test.cd
    password: Sup3r$ecret!
    roles: [teacher]
  - name: Alan Turing
    email: alan@test.cd
    password: Sup3r$ecret!
    roles: [student]
courses:
  - title: Go Basics
    description: Learn Go from scratch
    teacher: ada
    price: 5000
    currency: usd
    status: published
    modules: [Intro, Concurrency]
coupons:
  - code: half
    percent_off: 50
    max_redemptions: 10
`

func writeSeed(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_commandLine_seed(t *testing.T) {
	env, cli, out := setup(t)
	ctx := context.Background()
	path := writeSeed(t, seedYAML)

	tests := []cliTest{
		{name: "no file", args: []string{"seed"}, wantErrStr: "accepts 1 arg(s), received 0"},
		{name: "missing file", args: []string{"seed", filepath.Join(t.TempDir(), "nope.yaml")}, wantErrStr: "opening seed file"},
		{name: "unknown field", args: []string{"seed", writeSeed(t, "users:\n  - nickname: bob\n")}, wantErrStr: "parsing seed file"},
		{name: "unknown role", args: []string{"seed", writeSeed(t, "users:\n  - name: Bob\n    username: bob\n    password: Sup3r$ecret!\n    roles: [janitor]\n")}, wantErrStr: `users[0]: unknown role "janitor"`},
		{name: "unknown teacher", args: []string{"seed", writeSeed(t, "courses:\n  - title: Rust\n    teacher: nobody\n")}, wantErrStr: `courses[0]: getting teacher "nobody"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(ctx, tt.args))
		})
	}

	t.Run("seed", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run(ctx, []string{"seed", path}))
		assert.Equal(t, "seeded 2 users, 1 courses and 1 coupons (0 skipped)\n", out.String())

		ada, err := env.UserSvc.GetByUsername(ctx, "ada")
		require.NoError(t, err)
		assert.True(t, ada.IsTeacher())
		assert.True(t, ada.IsApproved())

		alan, err := env.UserSvc.GetByEmail(ctx, "alan@test.cd")
		require.NoError(t, err)
		assert.True(t, alan.IsStudent())

		courses, err := env.CourseSvc.ListAll(ctx, query.New(course.Schema).Where("teacher_id", query.Eq, ada.ID))
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, "Go Basics", courses[0].Title)
		assert.Equal(t, "USD", courses[0].Currency)
		assert.Equal(t, course.StatusPublished, courses[0].Status)

		mods, err := env.CourseSvc.ListModules(ctx, ada, courses[0].ID)
		require.NoError(t, err)
		require.Len(t, mods, 2)
		assert.Equal(t, "Intro", mods[0].Title)
		assert.Equal(t, "Concurrency", mods[1].Title)

		coupon, err := env.EnrollSvc.GetCoupon(ctx, "HALF")
		require.NoError(t, err)
		assert.Equal(t, 50, coupon.PercentOff)
		assert.True(t, coupon.IsActive)
	})

	t.Run("seeding twice skips existing records", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run(ctx, []string{"seed", path}))
		assert.Equal(t, "seeded 0 users, 0 courses and 0 coupons (4 skipped)\n", out.String())
	})
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password cannot be empty")
)

type commandLine struct {
	db         *sql.DB // nil on the memory engine
	usrRepo    user.Repository
	usrSvc     user.Service
	courseSvc  course.Service
	enrollSvc  enrollment.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Darasa administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.approveCmd(),
		cli.seedCmd(),
	)
	return root
}

// run executes the command line described by args (without the program name).
func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	// cobra reads os.Args when given nil
	root.SetArgs(append([]string{}, args...))
	return root.ExecuteContext(ctx)
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(label string) (string, error) {
	cli.printf("%s: ", label)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// describe turns validation failures into a readable one-liner.
func (cli *commandLine) describe(err error) error {
	var fields map[string]string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		fields = make(map[string]string, len(e))
		for _, fe := range e {
			fields[strings.ToLower(fe.Field())] = fe.Translate(cli.translator)
		}
	case *core.ValidationError:
		if len(e.Fields) == 0 {
			return err
		}
		fields = make(map[string]string, len(e.Fields))
		for _, fe := range e.Fields {
			fields[fe.Field] = fe.Error
		}
	default:
		return err
	}

	msgs := make([]string, 0, len(fields))
	for f, msg := range fields {
		msgs = append(msgs, f+": "+msg)
	}
	sort.Strings(msgs)
	return errors.New("invalid input: " + strings.Join(msgs, "; "))
}

package dig_container

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/material"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/payment"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/inmem"
	"github.com/trezcool/darasa/storage/database/sqlx"
	"github.com/trezcool/darasa/storage/files"
)

const dbSetupTimeout = time.Minute

type (
	// Repositories are provided together since they share one storage engine.
	Repositories struct {
		dig.Out

		Users         user.Repository
		Notifications notification.Repository
		Courses       course.Repository
		Enrollments   enrollment.Repository
		Assignments   assignment.Repository
		LiveClasses   liveclass.Repository
		Materials     material.Repository
	}

	// DBCloser releases the database connection pool, if any.
	DBCloser func() error
)

func newRollbarLogger(conf *core.Config) (*logsvc.RollbarLogger, error) {
	local, err := logsvc.NewZapLogger(conf)
	if err != nil {
		return nil, errors.Wrap(err, "creating zap logger")
	}
	return logsvc.NewRollbarLogger(local, conf), nil
}

func newLogger(l *logsvc.RollbarLogger) core.Logger { return l }

func newPostgres(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRepositories(conf *core.Config, logger core.Logger) (Repositories, DBCloser, error) {
	switch conf.Database.Engine {
	case "memory":
		logger.Warn("using the in-memory database: data is lost on restart")
		db := inmemdb.Open()
		return Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Courses:       inmemdb.NewCourseRepository(db),
			Enrollments:   inmemdb.NewEnrollmentRepository(db),
			Assignments:   inmemdb.NewAssignmentRepository(db),
			LiveClasses:   inmemdb.NewLiveClassRepository(db),
			Materials:     inmemdb.NewMaterialRepository(db),
		}, func() error { return nil }, nil

	case "postgres", "":
		ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
		defer cancel()

		db, err := newPostgres(ctx, conf)
		if err != nil {
			return Repositories{}, nil, errors.Wrap(err, "setting up database")
		}
		return Repositories{
			Users:         sqlxrepos.NewUserRepository(db),
			Notifications: sqlxrepos.NewNotificationRepository(db),
			Courses:       sqlxrepos.NewCourseRepository(db),
			Enrollments:   sqlxrepos.NewEnrollmentRepository(db),
			Assignments:   sqlxrepos.NewAssignmentRepository(db),
			LiveClasses:   sqlxrepos.NewLiveClassRepository(db),
			Materials:     sqlxrepos.NewMaterialRepository(db),
		}, db.Close, nil

	default:
		return Repositories{}, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func newFileStore(conf *core.Config) (core.FileStore, error) {
	return files.NewStore(context.Background(), conf)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newPaymentGateway(logger core.Logger) enrollment.PaymentGateway {
	return paymentsvc.NewSimulatedGateway(logger)
}

func newValidator() *validator.Validate {
	return validator.New()
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newRollbarLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newRepositories))
	must(c.Provide(newFileStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newPaymentGateway))
	must(c.Provide(newValidator))
	must(c.Provide(core.NewTranslator))

	must(c.Provide(notification.NewService))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(assignment.NewService))
	must(c.Provide(liveclass.NewService))
	must(c.Provide(material.NewService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

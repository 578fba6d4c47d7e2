package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/payment"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/inmem"
	"github.com/trezcool/darasa/storage/database/sqlx"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()
	logger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Printf("creating logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	cli, mailSvc, closeDB, err := newCommandLine(ctx, conf, logger)
	if err != nil {
		logger.Error("setting up", err)
		return 1
	}
	defer func() {
		if err := closeDB(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	defer mailSvc.Wait()

	if err = cli.run(ctx, os.Args[1:]); err != nil {
		cli.printf("error: %v\n", err)
		return 1
	}
	return 0
}

// newCommandLine wires the services the commands need on the configured database engine.
func newCommandLine(ctx context.Context, conf *core.Config, logger core.Logger) (*commandLine, core.EmailService, func() error, error) {
	var (
		db         *sql.DB
		usrRepo    user.Repository
		notifRepo  notification.Repository
		courseRepo course.Repository
		enrollRepo enrollment.Repository
	)
	closeDB := func() error { return nil }

	switch conf.Database.Engine {
	case "memory":
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		notifRepo = inmemdb.NewNotificationRepository(mem)
		courseRepo = inmemdb.NewCourseRepository(mem)
		enrollRepo = inmemdb.NewEnrollmentRepository(mem)
	default:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := database.Open(ctx, conf)
		if err != nil {
			return nil, nil, nil, err
		}
		db, closeDB = sqlDB.DB, sqlDB.Close
		usrRepo = sqlxrepos.NewUserRepository(sqlDB)
		notifRepo = sqlxrepos.NewNotificationRepository(sqlDB)
		courseRepo = sqlxrepos.NewCourseRepository(sqlDB)
		enrollRepo = sqlxrepos.NewEnrollmentRepository(sqlDB)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	notifSvc := notification.NewService(notifRepo)
	usrSvc := user.NewService(usrRepo, notifSvc, mailSvc, conf)
	courseSvc := course.NewService(courseRepo, usrSvc, conf)
	enrollSvc := enrollment.NewService(enrollRepo, courseSvc, notifSvc, mailSvc, paymentsvc.NewSimulatedGateway(logger))

	cli := &commandLine{
		db:         db,
		usrRepo:    usrRepo,
		usrSvc:     usrSvc,
		courseSvc:  courseSvc,
		enrollSvc:  enrollSvc,
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	return cli, mailSvc, closeDB, nil
}

// Package testutil wires the whole application on the in-memory database for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

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
	"github.com/trezcool/darasa/storage/database/inmem"
	"github.com/trezcool/darasa/storage/files"
)

// Env is a fully wired application backed by memory and a temporary media dir.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Mail       *emailsvc.ConsoleServiceMock
	Gateway    *paymentsvc.SimulatedGateway
	Files      core.FileStore
	Validate   *validator.Validate
	Translator ut.Translator

	UserRepo user.Repository

	UserSvc     user.Service
	NotifSvc    notification.Service
	CourseSvc   course.Service
	EnrollSvc   enrollment.Service
	AssignSvc   assignment.Service
	LiveSvc     liveclass.Service
	MaterialSvc material.Service
	DashSvc     dashboard.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Storage.LocalDir = t.TempDir()
	logger := logsvc.NewNopLogger()

	store, err := files.NewStore(context.Background(), conf)
	if err != nil {
		t.Fatalf("files.NewStore() failed: %v", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	env := &Env{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
		Gateway:    paymentsvc.NewSimulatedGateway(logger),
		Files:      store,
		Validate:   validate,
		Translator: translator,
		UserRepo:   inmemdb.NewUserRepository(db),
	}

	env.NotifSvc = notification.NewService(inmemdb.NewNotificationRepository(db))
	env.UserSvc = user.NewService(env.UserRepo, env.NotifSvc, env.Mail, conf)
	env.CourseSvc = course.NewService(inmemdb.NewCourseRepository(db), env.UserSvc, conf)
	env.EnrollSvc = enrollment.NewService(inmemdb.NewEnrollmentRepository(db), env.CourseSvc, env.NotifSvc, env.Mail, env.Gateway)
	env.AssignSvc = assignment.NewService(
		inmemdb.NewAssignmentRepository(db), env.CourseSvc, env.EnrollSvc, env.UserSvc, env.NotifSvc, env.Mail,
	)
	env.LiveSvc = liveclass.NewService(
		inmemdb.NewLiveClassRepository(db), env.CourseSvc, env.EnrollSvc, env.UserSvc, env.NotifSvc, env.Mail, conf,
	)
	env.MaterialSvc = material.NewService(
		inmemdb.NewMaterialRepository(db), store, env.CourseSvc, env.EnrollSvc, env.NotifSvc, conf,
	)
	env.DashSvc = dashboard.NewService(env.UserSvc, env.CourseSvc, env.EnrollSvc, env.AssignSvc, env.LiveSvc, env.NotifSvc)
	return env
}

// CreateUser stores an approved user.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:       name,
		Username:   uname,
		Email:      email,
		Roles:      roles,
		Onboarding: user.Onboarding{Status: user.OnboardingApproved},
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreatePendingUser stores a user whose onboarding awaits review.
func CreatePendingUser(t *testing.T, repo user.Repository, name, uname, email, pwd string, roles []string) user.User {
	t.Helper()

	usr := CreateUser(t, repo, name, uname, email, pwd, roles, true)
	usr.Onboarding = user.Onboarding{Status: user.OnboardingPending}
	usr, err := repo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreatePendingUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, svc course.Service, teacher user.User, title string, price int64, capacity int) course.Course {
	t.Helper()

	c, err := svc.Create(context.Background(), teacher, course.NewCourse{
		Title:       title,
		Description: title + " from scratch",
		Price:       price,
		Capacity:    capacity,
		Status:      course.StatusPublished,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func AddModule(t *testing.T, svc course.Service, teacher user.User, courseID, title string) course.Module {
	t.Helper()

	m, err := svc.AddModule(context.Background(), teacher, courseID, course.NewModule{Title: title})
	if err != nil {
		t.Fatalf("AddModule() failed: %v", err)
	}
	return m
}

func Enroll(t *testing.T, svc enrollment.Service, student user.User, courseID string) enrollment.Enrollment {
	t.Helper()

	e, err := svc.Checkout(context.Background(), student, enrollment.Checkout{
		CourseID:      courseID,
		PaymentMethod: enrollment.PaymentMethod{Token: "tok_visa"},
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}

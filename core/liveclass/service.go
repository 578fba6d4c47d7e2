package liveclass

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

const upcomingLimit = 20

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("live session not found")
	ErrNotJoinable   = core.NewConflictError("session is not open for joining")
	ErrNotScheduled  = core.NewConflictError("session is not scheduled")
	ErrNotLive       = core.NewConflictError("session is not live")
	errStartsInPast  = "must be in the future"
	errDurationRange = "must be between " + strconv.Itoa(MinDuration) + " and " + strconv.Itoa(MaxDuration) + " minutes"
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		QuerySessions(ctx context.Context, q query.Query) ([]Session, int, error)
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		// AddAttendance records a join once; it reports whether the row is new.
		AddAttendance(ctx context.Context, a Attendance) (bool, error)
		ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error)
	}

	Service interface {
		Schedule(ctx context.Context, actor user.User, courseID string, ns NewSession) (Session, error)
		ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Session], error)
		// Upcoming lists the scheduled and live sessions relevant to actor, soonest first.
		Upcoming(ctx context.Context, actor user.User) ([]Session, error)
		Get(ctx context.Context, actor user.User, id string) (Session, error)
		Start(ctx context.Context, actor user.User, id string) (Session, error)
		End(ctx context.Context, actor user.User, id string) (Session, error)
		Cancel(ctx context.Context, actor user.User, id string) (Session, error)
		Join(ctx context.Context, actor user.User, id string) (JoinInfo, error)
		Attendance(ctx context.Context, actor user.User, id string) ([]Attendance, error)
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		enrollSvc enrollment.Service
		userSvc   user.Service
		notifSvc  notification.Service
		mailSvc   core.EmailService
		conf      *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courseSvc course.Service,
	enrollSvc enrollment.Service,
	userSvc user.Service,
	notifSvc notification.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrollSvc, "enrollSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(notifSvc, "notifSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		courseSvc: courseSvc,
		enrollSvc: enrollSvc,
		userSvc:   userSvc,
		notifSvc:  notifSvc,
		mailSvc:   mailSvc,
		conf:      conf,
	}
}

// Schedule creates a session hosted by the course teacher and invites enrolled students.
func (svc *service) Schedule(ctx context.Context, actor user.User, courseID string, ns NewSession) (Session, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Session{}, err
	}

	now := core.NowFunc()
	var flds []core.FieldError
	if !ns.StartsAt.After(now) {
		flds = append(flds, core.FieldError{Field: "starts_at", Error: errStartsInPast})
	}
	if ns.Duration < MinDuration || ns.Duration > MaxDuration {
		flds = append(flds, core.FieldError{Field: "duration", Error: errDurationRange})
	}
	if flds != nil {
		return Session{}, core.NewValidationError(nil, flds...)
	}

	s := Session{
		CourseID:    c.ID,
		Title:       ns.Title,
		Description: ns.Description,
		StartsAt:    ns.StartsAt.UTC(),
		Duration:    ns.Duration,
		MeetingURL:  svc.conf.LiveClass.MeetingBaseURL + "/" + uuid.NewString(),
		Status:      StatusScheduled,
		HostID:      c.TeacherID,
		CreatedAt:   now,
	}
	if s, err = svc.repo.CreateSession(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}

	studentIDs, err := svc.enrollSvc.StudentIDs(ctx, c.ID)
	if err != nil {
		return Session{}, err
	}
	if len(studentIDs) == 0 {
		return s, nil
	}
	err = svc.notifSvc.Notify(ctx, studentIDs, notification.NewNotification{
		Kind:  notification.KindLiveClass,
		Title: "Live class scheduled: " + s.Title,
		Body:  c.Title + " on " + s.StartsAt.Format(time.RFC1123),
		Link:  "/live/" + s.ID,
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "notifying students")
	}

	students, err := svc.userSvc.ListByIDs(ctx, studentIDs...)
	if err != nil {
		return Session{}, errors.Wrap(err, "listing students")
	}
	msgs := make([]*core.EmailMessage, 0, len(students))
	for _, st := range students {
		if st.Email == "" {
			continue
		}
		msgs = append(msgs, core.NewEmailMessage(
			"Live class scheduled: "+s.Title,
			"live_class_scheduled",
			map[string]interface{}{
				"Name":        st.Name,
				"CourseTitle": c.Title,
				"Title":       s.Title,
				"StartsAt":    s.StartsAt.Format(time.RFC1123),
				"Duration":    (time.Duration(s.Duration) * time.Minute).String(),
				"SessionID":   s.ID,
			},
			st.MailAddress(),
		))
	}
	svc.mailSvc.SendMessages(msgs...)
	return s, nil
}

func (svc *service) ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Session], error) {
	if _, _, err := svc.enrollSvc.Access(ctx, actor, courseID); err != nil {
		return query.Page[Session]{}, err
	}
	q = q.Where("course_id", query.Eq, courseID)
	ss, count, err := svc.repo.QuerySessions(ctx, q)
	if err != nil {
		return query.Page[Session]{}, errors.Wrap(err, "querying sessions")
	}
	return query.NewPage(ss, count, q), nil
}

func (svc *service) Upcoming(ctx context.Context, actor user.User) ([]Session, error) {
	q := query.New(Schema).
		Where("status", query.In, []interface{}{StatusScheduled, StatusLive}).
		Where("starts_at", query.Gte, core.NowFunc().Add(-MaxDuration*time.Minute))
	q.Limit = upcomingLimit

	if !actor.IsAdmin() {
		var courseIDs []string
		if actor.IsTeacher() {
			courses, err := svc.courseSvc.ListAll(ctx, query.New(course.Schema).Where("teacher_id", query.Eq, actor.ID))
			if err != nil {
				return nil, err
			}
			for _, c := range courses {
				courseIDs = append(courseIDs, c.ID)
			}
		}
		if actor.IsStudent() {
			ids, err := svc.enrollSvc.CourseIDs(ctx, actor.ID)
			if err != nil {
				return nil, err
			}
			courseIDs = append(courseIDs, ids...)
		}
		q = q.Where("course_id", query.In, query.Strings(courseIDs))
	}

	ss, _, err := svc.repo.QuerySessions(ctx, q)
	return ss, errors.Wrap(err, "querying sessions")
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, errors.Wrap(err, "getting session")
	}
	if _, _, err := svc.enrollSvc.Access(ctx, actor, s.CourseID); err != nil {
		return Session{}, err
	}
	return s, nil
}

// getHosted returns the session if actor hosts it, owns its course or is an admin.
func (svc *service) getHosted(ctx context.Context, actor user.User, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, errors.Wrap(err, "getting session")
	}
	if s.HostID == actor.ID || actor.IsAdmin() {
		return s, nil
	}
	if _, err := svc.courseSvc.GetManaged(ctx, actor, s.CourseID); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (svc *service) Start(ctx context.Context, actor user.User, id string) (Session, error) {
	s, err := svc.getHosted(ctx, actor, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusScheduled {
		return Session{}, ErrNotScheduled
	}

	now := core.NowFunc()
	s.Status = StatusLive
	s.StartedAt = &now
	s, err = svc.repo.UpdateSession(ctx, s)
	return s, errors.Wrap(err, "updating session")
}

func (svc *service) End(ctx context.Context, actor user.User, id string) (Session, error) {
	s, err := svc.getHosted(ctx, actor, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusLive {
		return Session{}, ErrNotLive
	}

	now := core.NowFunc()
	s.Status = StatusEnded
	s.EndedAt = &now
	s, err = svc.repo.UpdateSession(ctx, s)
	return s, errors.Wrap(err, "updating session")
}

func (svc *service) Cancel(ctx context.Context, actor user.User, id string) (Session, error) {
	s, err := svc.getHosted(ctx, actor, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusScheduled {
		return Session{}, ErrNotScheduled
	}

	s.Status = StatusCancelled
	if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "updating session")
	}

	studentIDs, err := svc.enrollSvc.StudentIDs(ctx, s.CourseID)
	if err != nil {
		return Session{}, err
	}
	err = svc.notifSvc.Notify(ctx, studentIDs, notification.NewNotification{
		Kind:  notification.KindLiveClass,
		Title: "Live class cancelled: " + s.Title,
		Body:  "The session planned on " + s.StartsAt.Format(time.RFC1123) + " was cancelled.",
		Link:  "/live/" + s.ID,
	})
	return s, errors.Wrap(err, "notifying students")
}

// Join hands out the meeting URL; enrolled students get their attendance recorded.
func (svc *service) Join(ctx context.Context, actor user.User, id string) (JoinInfo, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return JoinInfo{}, errors.Wrap(err, "getting session")
	}
	_, manages, err := svc.enrollSvc.Access(ctx, actor, s.CourseID)
	if err != nil {
		return JoinInfo{}, err
	}

	now := core.NowFunc()
	if !s.Joinable(now, svc.conf.LiveClass.JoinWindow) {
		return JoinInfo{}, ErrNotJoinable
	}
	if !manages {
		_, err := svc.repo.AddAttendance(ctx, Attendance{SessionID: s.ID, StudentID: actor.ID, JoinedAt: now})
		if err != nil {
			return JoinInfo{}, errors.Wrap(err, "recording attendance")
		}
	}
	return JoinInfo{SessionID: s.ID, MeetingURL: s.MeetingURL}, nil
}

func (svc *service) Attendance(ctx context.Context, actor user.User, id string) ([]Attendance, error) {
	s, err := svc.getHosted(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	aa, err := svc.repo.ListAttendance(ctx, s.ID)
	return aa, errors.Wrap(err, "listing attendance")
}

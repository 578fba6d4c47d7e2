package assignment

import (
	"context"
	"strconv"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("assignment not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrSubmissionClosed   = core.NewConflictError("submissions are closed for this assignment")
	ErrAlreadyGraded      = core.NewConflictError("submission has already been graded")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		QueryAssignments(ctx context.Context, q query.Query) ([]Assignment, int, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error

		QuerySubmissions(ctx context.Context, q query.Query) ([]Submission, int, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		FindSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error)
		// SaveSubmission inserts s, or replaces the submission of the same student and assignment.
		SaveSubmission(ctx context.Context, s Submission) (Submission, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, courseID string, na NewAssignment) (Assignment, error)
		Get(ctx context.Context, actor user.User, id string) (Assignment, error)
		ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Assignment], error)
		Update(ctx context.Context, actor user.User, id string, ua UpdateAssignment) (Assignment, error)
		Delete(ctx context.Context, actor user.User, id string) error

		Submit(ctx context.Context, student user.User, id string, ns NewSubmission) (Submission, error)
		ListSubmissions(ctx context.Context, actor user.User, id string, q query.Query) (query.Page[Submission], error)
		MySubmission(ctx context.Context, student user.User, id string) (Submission, error)
		Grade(ctx context.Context, actor user.User, submissionID string, gs GradeSubmission) (Submission, error)

		// DueSoon lists the unsubmitted assignments of a student's courses due within window.
		DueSoon(ctx context.Context, studentID string, window time.Duration) ([]Assignment, error)
		// CountUngraded counts the submissions awaiting a grade in the given courses.
		CountUngraded(ctx context.Context, courseIDs []string) (int, error)
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		enrollSvc enrollment.Service
		userSvc   user.Service
		notifSvc  notification.Service
		mailSvc   core.EmailService
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
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrollSvc, "enrollSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(notifSvc, "notifSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		courseSvc: courseSvc,
		enrollSvc: enrollSvc,
		userSvc:   userSvc,
		notifSvc:  notifSvc,
		mailSvc:   mailSvc,
	}
}

func (svc *service) checkModule(ctx context.Context, courseID, moduleID string) error {
	if moduleID == "" {
		return nil
	}
	if _, err := svc.courseSvc.GetModule(ctx, courseID, moduleID); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldValidationError("module_id", "module does not belong to this course")
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor user.User, courseID string, na NewAssignment) (Assignment, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Assignment{}, err
	}
	if err := svc.checkModule(ctx, courseID, na.ModuleID); err != nil {
		return Assignment{}, err
	}

	now := core.NowFunc()
	a := Assignment{
		CourseID:     courseID,
		ModuleID:     na.ModuleID,
		Title:        na.Title,
		Instructions: na.Instructions,
		DueAt:        na.DueAt,
		MaxPoints:    na.MaxPoints,
		AllowLate:    na.AllowLate,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a, err = svc.repo.CreateAssignment(ctx, a); err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}

	studentIDs, err := svc.enrollSvc.StudentIDs(ctx, courseID)
	if err != nil {
		return Assignment{}, err
	}
	err = svc.notifSvc.Notify(ctx, studentIDs, notification.NewNotification{
		Kind:  notification.KindAssignment,
		Title: "New assignment in " + c.Title,
		Body:  a.Title,
		Link:  "/assignments/" + a.ID,
	})
	return a, errors.Wrap(err, "notifying students")
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "getting assignment")
	}
	if _, _, err := svc.enrollSvc.Access(ctx, actor, a.CourseID); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (svc *service) getManaged(ctx context.Context, actor user.User, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "getting assignment")
	}
	if _, err := svc.courseSvc.GetManaged(ctx, actor, a.CourseID); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (svc *service) ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Assignment], error) {
	if _, _, err := svc.enrollSvc.Access(ctx, actor, courseID); err != nil {
		return query.Page[Assignment]{}, err
	}
	q = q.Where("course_id", query.Eq, courseID)
	aa, count, err := svc.repo.QueryAssignments(ctx, q)
	if err != nil {
		return query.Page[Assignment]{}, errors.Wrap(err, "querying assignments")
	}
	return query.NewPage(aa, count, q), nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.getManaged(ctx, actor, id)
	if err != nil {
		return Assignment{}, err
	}
	a = ua.apply(a)
	if err := svc.checkModule(ctx, a.CourseID, a.ModuleID); err != nil {
		return Assignment{}, err
	}
	a.UpdatedAt = core.NowFunc()

	a, err = svc.repo.UpdateAssignment(ctx, a)
	return a, errors.Wrap(err, "updating assignment")
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	if _, err := svc.getManaged(ctx, actor, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteAssignment(ctx, id), "deleting assignment")
}

// Submit records the student's work; an ungraded submission is replaced and a graded one is final.
func (svc *service) Submit(ctx context.Context, student user.User, id string, ns NewSubmission) (Submission, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting assignment")
	}
	enrolled, err := svc.enrollSvc.IsEnrolled(ctx, student.ID, a.CourseID)
	if err != nil {
		return Submission{}, err
	}
	if !enrolled {
		return Submission{}, core.ErrPermissionDenied
	}

	sub, err := svc.repo.FindSubmission(ctx, a.ID, student.ID)
	if err != nil && !core.IsNotFound(err) {
		return Submission{}, errors.Wrap(err, "finding submission")
	}
	if sub.IsGraded() {
		return Submission{}, ErrAlreadyGraded
	}

	now := core.NowFunc()
	late := a.IsPastDue(now)
	if late && !a.AllowLate {
		return Submission{}, ErrSubmissionClosed
	}

	sub = Submission{
		ID:            sub.ID,
		AssignmentID:  a.ID,
		StudentID:     student.ID,
		Content:       ns.Content,
		AttachmentURL: ns.AttachmentURL,
		SubmittedAt:   now,
		IsLate:        late,
		Status:        StatusSubmitted,
	}
	sub, err = svc.repo.SaveSubmission(ctx, sub)
	return sub, errors.Wrap(err, "saving submission")
}

func (svc *service) ListSubmissions(ctx context.Context, actor user.User, id string, q query.Query) (query.Page[Submission], error) {
	a, err := svc.getManaged(ctx, actor, id)
	if err != nil {
		return query.Page[Submission]{}, err
	}
	q = q.Where("assignment_id", query.Eq, a.ID)
	ss, count, err := svc.repo.QuerySubmissions(ctx, q)
	if err != nil {
		return query.Page[Submission]{}, errors.Wrap(err, "querying submissions")
	}
	return query.NewPage(ss, count, q), nil
}

func (svc *service) MySubmission(ctx context.Context, student user.User, id string) (Submission, error) {
	if _, err := svc.Get(ctx, student, id); err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.FindSubmission(ctx, id, student.ID)
	return sub, errors.Wrap(err, "finding submission")
}

func (svc *service) Grade(ctx context.Context, actor user.User, submissionID string, gs GradeSubmission) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	a, err := svc.getManaged(ctx, actor, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if *gs.Points > a.MaxPoints {
		return Submission{}, core.NewFieldValidationError("points", "must be "+strconv.Itoa(a.MaxPoints)+" or less")
	}

	now := core.NowFunc()
	points := *gs.Points
	sub.Status = StatusGraded
	sub.Points = &points
	sub.Feedback = gs.Feedback
	sub.GradedBy = actor.ID
	sub.GradedAt = &now
	if sub, err = svc.repo.SaveSubmission(ctx, sub); err != nil {
		return Submission{}, errors.Wrap(err, "saving submission")
	}

	err = svc.notifSvc.Notify(ctx, []string{sub.StudentID}, notification.NewNotification{
		Kind:  notification.KindGrade,
		Title: "Graded: " + a.Title,
		Body:  "You scored " + strconv.Itoa(points) + "/" + strconv.Itoa(a.MaxPoints) + ".",
		Link:  "/assignments/" + a.ID,
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "notifying student")
	}

	student, err := svc.userSvc.GetByID(ctx, sub.StudentID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting student")
	}
	svc.mailSvc.SendMessages(core.NewEmailMessage(
		"Your submission has been graded",
		"assignment_graded",
		map[string]interface{}{
			"Name":            student.Name,
			"AssignmentID":    a.ID,
			"AssignmentTitle": a.Title,
			"Points":          points,
			"MaxPoints":       a.MaxPoints,
			"Feedback":        sub.Feedback,
		},
		student.MailAddress(),
	))
	return sub, nil
}

func (svc *service) DueSoon(ctx context.Context, studentID string, window time.Duration) ([]Assignment, error) {
	courseIDs, err := svc.enrollSvc.CourseIDs(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(courseIDs) == 0 {
		return []Assignment{}, nil
	}

	now := core.NowFunc()
	q := query.New(Schema).
		Where("course_id", query.In, query.Strings(courseIDs)).
		Where("due_at", query.Gte, now).
		Where("due_at", query.Lte, now.Add(window))
	aa, _, err := svc.repo.QueryAssignments(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	if len(aa) == 0 {
		return aa, nil
	}

	ids := make([]string, 0, len(aa))
	for _, a := range aa {
		ids = append(ids, a.ID)
	}
	subs, _, err := svc.repo.QuerySubmissions(ctx, query.New(SubmissionSchema).
		Where("student_id", query.Eq, studentID).
		Where("assignment_id", query.In, query.Strings(ids)))
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	submitted := make(map[string]bool, len(subs))
	for _, s := range subs {
		submitted[s.AssignmentID] = true
	}

	due := make([]Assignment, 0, len(aa))
	for _, a := range aa {
		if !submitted[a.ID] {
			due = append(due, a)
		}
	}
	return due, nil
}

func (svc *service) CountUngraded(ctx context.Context, courseIDs []string) (int, error) {
	if len(courseIDs) == 0 {
		return 0, nil
	}
	aa, _, err := svc.repo.QueryAssignments(ctx, query.New(Schema).Where("course_id", query.In, query.Strings(courseIDs)))
	if err != nil {
		return 0, errors.Wrap(err, "querying assignments")
	}
	if len(aa) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(aa))
	for _, a := range aa {
		ids = append(ids, a.ID)
	}

	q := query.New(SubmissionSchema).
		Where("assignment_id", query.In, query.Strings(ids)).
		Where("status", query.Eq, StatusSubmitted)
	q.Limit = 1
	_, count, err := svc.repo.QuerySubmissions(ctx, q)
	return count, errors.Wrap(err, "counting submissions")
}

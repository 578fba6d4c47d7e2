package material

import (
	"context"
	"io"
	"path"
	"strings"

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

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("material not found")
	errTooLarge    = "file is too large"
	errEmptyUpload = "file is empty"
)

type (
	Repository interface {
		CreateMaterial(ctx context.Context, m Material) (Material, error)
		QueryMaterials(ctx context.Context, q query.Query) ([]Material, int, error)
		GetMaterial(ctx context.Context, id string) (Material, error)
		DeleteMaterial(ctx context.Context, id string) error
	}

	Service interface {
		Upload(ctx context.Context, actor user.User, courseID string, nm NewMaterial, up Upload) (Material, error)
		AddLink(ctx context.Context, actor user.User, courseID string, nl NewLink) (Material, error)
		ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Material], error)
		Get(ctx context.Context, actor user.User, id string) (Material, error)
		// Open streams an uploaded file; the reader is nil for links.
		Open(ctx context.Context, actor user.User, id string) (Material, io.ReadCloser, error)
		Delete(ctx context.Context, actor user.User, id string) error
	}

	service struct {
		repo      Repository
		files     core.FileStore
		courseSvc course.Service
		enrollSvc enrollment.Service
		notifSvc  notification.Service
		conf      *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	files core.FileStore,
	courseSvc course.Service,
	enrollSvc enrollment.Service,
	notifSvc notification.Service,
	conf *core.Config,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrollSvc, "enrollSvc"),
		vala.IsNotNil(notifSvc, "notifSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		files:     files,
		courseSvc: courseSvc,
		enrollSvc: enrollSvc,
		notifSvc:  notifSvc,
		conf:      conf,
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

func (svc *service) Upload(ctx context.Context, actor user.User, courseID string, nm NewMaterial, up Upload) (Material, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Material{}, err
	}
	if err := svc.checkModule(ctx, courseID, nm.ModuleID); err != nil {
		return Material{}, err
	}
	maxSize := svc.conf.Storage.MaxUploadSize
	if up.Size > maxSize {
		return Material{}, core.NewFieldValidationError("file", errTooLarge)
	}

	typ := nm.Type
	if typ == "" {
		typ = InferType(up.ContentType, up.Filename)
	}
	ext := strings.ToLower(path.Ext(up.Filename))
	key := path.Join("courses", courseID, "materials", uuid.NewString()+ext)

	// one extra byte tells an oversized stream apart from one of exactly maxSize
	size, err := svc.files.Put(ctx, key, io.LimitReader(up.Body, maxSize+1), up.ContentType)
	if err != nil {
		return Material{}, errors.Wrap(err, "storing file")
	}
	if size > maxSize || size == 0 {
		_ = svc.files.Delete(ctx, key)
		if size == 0 {
			return Material{}, core.NewFieldValidationError("file", errEmptyUpload)
		}
		return Material{}, core.NewFieldValidationError("file", errTooLarge)
	}

	m := Material{
		CourseID:    courseID,
		ModuleID:    nm.ModuleID,
		Title:       nm.Title,
		Description: nm.Description,
		Type:        typ,
		URL:         svc.files.URL(key),
		ObjectKey:   key,
		ContentType: up.ContentType,
		Size:        size,
		UploadedBy:  actor.ID,
		CreatedAt:   core.NowFunc(),
	}
	if m, err = svc.repo.CreateMaterial(ctx, m); err != nil {
		_ = svc.files.Delete(ctx, key)
		return Material{}, errors.Wrap(err, "creating material")
	}
	return m, svc.notifyStudents(ctx, c, m)
}

func (svc *service) AddLink(ctx context.Context, actor user.User, courseID string, nl NewLink) (Material, error) {
	c, err := svc.courseSvc.GetManaged(ctx, actor, courseID)
	if err != nil {
		return Material{}, err
	}
	if err := svc.checkModule(ctx, courseID, nl.ModuleID); err != nil {
		return Material{}, err
	}

	m := Material{
		CourseID:    courseID,
		ModuleID:    nl.ModuleID,
		Title:       nl.Title,
		Description: nl.Description,
		Type:        nl.Type,
		URL:         nl.URL,
		UploadedBy:  actor.ID,
		CreatedAt:   core.NowFunc(),
	}
	if m.Type == "" {
		m.Type = TypeLink
	}
	if m, err = svc.repo.CreateMaterial(ctx, m); err != nil {
		return Material{}, errors.Wrap(err, "creating material")
	}
	return m, svc.notifyStudents(ctx, c, m)
}

func (svc *service) notifyStudents(ctx context.Context, c course.Course, m Material) error {
	studentIDs, err := svc.enrollSvc.StudentIDs(ctx, c.ID)
	if err != nil {
		return err
	}
	err = svc.notifSvc.Notify(ctx, studentIDs, notification.NewNotification{
		Kind:  notification.KindMaterial,
		Title: "New material in " + c.Title,
		Body:  m.Title,
		Link:  "/materials/" + m.ID,
	})
	return errors.Wrap(err, "notifying students")
}

func (svc *service) ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Material], error) {
	if _, _, err := svc.enrollSvc.Access(ctx, actor, courseID); err != nil {
		return query.Page[Material]{}, err
	}
	q = q.Where("course_id", query.Eq, courseID)
	mm, count, err := svc.repo.QueryMaterials(ctx, q)
	if err != nil {
		return query.Page[Material]{}, errors.Wrap(err, "querying materials")
	}
	return query.NewPage(mm, count, q), nil
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Material, error) {
	m, err := svc.repo.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, errors.Wrap(err, "getting material")
	}
	if _, _, err := svc.enrollSvc.Access(ctx, actor, m.CourseID); err != nil {
		return Material{}, err
	}
	return m, nil
}

func (svc *service) Open(ctx context.Context, actor user.User, id string) (Material, io.ReadCloser, error) {
	m, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Material{}, nil, err
	}
	if !m.IsUpload() {
		return m, nil, nil
	}
	rc, err := svc.files.Open(ctx, m.ObjectKey)
	if err != nil {
		return Material{}, nil, errors.Wrap(err, "opening file")
	}
	return m, rc, nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	m, err := svc.repo.GetMaterial(ctx, id)
	if err != nil {
		return errors.Wrap(err, "getting material")
	}
	if _, err := svc.courseSvc.GetManaged(ctx, actor, m.CourseID); err != nil {
		return err
	}
	if err := svc.repo.DeleteMaterial(ctx, id); err != nil {
		return errors.Wrap(err, "deleting material")
	}
	if m.IsUpload() {
		return errors.Wrap(svc.files.Delete(ctx, m.ObjectKey), "deleting file")
	}
	return nil
}

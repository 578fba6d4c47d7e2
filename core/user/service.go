package user

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrUserExists     = errors.New("a user with this username or email already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrNotPending     = errors.New("onboarding has already been reviewed")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists on conflict.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, q query.Query) ([]User, int, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Signup(ctx context.Context, su SignupUser) (User, error)
		Query(ctx context.Context, q query.Query) (query.Page[User], error)
		ListByIDs(ctx context.Context, ids ...string) ([]User, error)
		Admins(ctx context.Context) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		ApproveOnboarding(ctx context.Context, reviewer User, id string) (User, error)
		RejectOnboarding(ctx context.Context, reviewer User, id string, ro RejectOnboarding) (User, error)
	}

	service struct {
		repo     Repository
		notifSvc notification.Service
		mailSvc  core.EmailService
		conf     *core.Config
		tokens   ResetTokens
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, notifSvc notification.Service, mailSvc core.EmailService, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(notifSvc, "notifSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		notifSvc: notifSvc,
		mailSvc:  mailSvc,
		conf:     conf,
		tokens:   NewResetTokens(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking username uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

// Create creates an approved user; used by admins.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc()
	usr := User{
		Name:       nu.Name,
		Username:   nu.Username,
		Email:      nu.Email,
		Roles:      nu.Roles,
		Bio:        nu.Bio,
		Onboarding: Onboarding{Status: OnboardingApproved},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

// Signup creates a pending user and lets every admin know about the application.
func (svc *service) Signup(ctx context.Context, su SignupUser) (User, error) {
	now := core.NowFunc()
	usr := User{
		Name:       su.Name,
		Username:   su.Username,
		Email:      su.Email,
		Roles:      []string{su.role()},
		Bio:        su.Bio,
		Onboarding: Onboarding{Status: OnboardingPending},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(su.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	admins, err := svc.Admins(ctx)
	if err != nil {
		return User{}, errors.Wrap(err, "listing admins")
	}
	if len(admins) > 0 {
		ids := make([]string, 0, len(admins))
		msgs := make([]*core.EmailMessage, 0, len(admins))
		for _, admin := range admins {
			ids = append(ids, admin.ID)
			if admin.Email == "" {
				continue
			}
			msgs = append(msgs, core.NewEmailMessage(
				"New "+su.Role+" application",
				"onboarding_received",
				map[string]interface{}{"Name": usr.Name, "Email": usr.Email, "Role": su.Role},
				admin.MailAddress(),
			))
		}
		svc.mailSvc.SendMessages(msgs...)

		err = svc.notifSvc.Notify(ctx, ids, notification.NewNotification{
			Kind:  notification.KindOnboarding,
			Title: "New " + su.Role + " application",
			Body:  usr.Name + " is waiting for approval.",
			Link:  "/admin/onboarding",
		})
		if err != nil {
			return User{}, errors.Wrap(err, "notifying admins")
		}
	}
	return usr, nil
}

func (svc *service) Query(ctx context.Context, q query.Query) (query.Page[User], error) {
	users, count, err := svc.repo.QueryUsers(ctx, q)
	if err != nil {
		return query.Page[User]{}, errors.Wrap(err, "querying users")
	}
	return query.NewPage(users, count, q), nil
}

func (svc *service) ListByIDs(ctx context.Context, ids ...string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, _, err := svc.repo.QueryUsers(ctx, query.New(Schema).Where("id", query.In, query.Strings(ids)))
	return users, errors.Wrap(err, "querying users by ID")
}

func (svc *service) Admins(ctx context.Context) ([]User, error) {
	q := query.New(Schema).Where("role", query.Eq, RoleAdmin).Where("is_active", query.Eq, true)
	users, _, err := svc.repo.QueryUsers(ctx, q)
	return users, errors.Wrap(err, "querying admins")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Bio != nil {
		usr.Bio = *uu.Bio
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	if usr.IsAdmin() {
		usr.Onboarding.Status = OnboardingApproved
	}
	usr.UpdatedAt = core.NowFunc()

	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowFunc()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids...)
	return errors.Wrap(err, "deleting users")
}

// RequestPasswordReset emails a reset link; unknown or inactive accounts are silently ignored.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "getting user by email")
	}
	if !usr.Active() {
		return nil
	}

	svc.mailSvc.SendMessages(core.NewEmailMessage(
		"Password Reset",
		"password_reset",
		map[string]interface{}{"Name": usr.Name, "UID": EncodeUID(usr), "Token": svc.tokens.Issue(usr)},
		usr.MailAddress(),
	))
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	invalidErr := func(field string) error {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "invalid value"})
	}

	uid, err := decodeUID(rp.UID)
	if err != nil {
		return invalidErr("uid")
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr("uid")
		}
		return errors.Wrap(err, "getting user by ID")
	}
	if err := svc.tokens.Check(usr, rp.Token); err != nil {
		return invalidErr("token")
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

func (svc *service) review(ctx context.Context, reviewer User, id, status, reason string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "getting user by ID")
	}
	if usr.Onboarding.Status != OnboardingPending {
		return User{}, core.NewValidationError(ErrNotPending, core.FieldError{Field: "status", Error: ErrNotPending.Error()})
	}

	now := core.NowFunc()
	usr.Onboarding = Onboarding{Status: status, Reason: reason, ReviewedBy: reviewer.ID, ReviewedAt: &now}
	usr.UpdatedAt = now
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (svc *service) ApproveOnboarding(ctx context.Context, reviewer User, id string) (User, error) {
	usr, err := svc.review(ctx, reviewer, id, OnboardingApproved, "")
	if err != nil {
		return User{}, err
	}

	svc.mailSvc.SendMessages(core.NewEmailMessage(
		"Your account has been approved",
		"onboarding_approved",
		map[string]interface{}{"Name": usr.Name},
		usr.MailAddress(),
	))
	err = svc.notifSvc.Notify(ctx, []string{usr.ID}, notification.NewNotification{
		Kind:  notification.KindOnboarding,
		Title: "Your account has been approved",
		Body:  "Welcome aboard! You now have full access.",
		Link:  "/dashboard",
	})
	return usr, errors.Wrap(err, "notifying user")
}

func (svc *service) RejectOnboarding(ctx context.Context, reviewer User, id string, ro RejectOnboarding) (User, error) {
	usr, err := svc.review(ctx, reviewer, id, OnboardingRejected, ro.Reason)
	if err != nil {
		return User{}, err
	}

	svc.mailSvc.SendMessages(core.NewEmailMessage(
		"Your application was not approved",
		"onboarding_rejected",
		map[string]interface{}{"Name": usr.Name, "Reason": ro.Reason},
		usr.MailAddress(),
	))
	err = svc.notifSvc.Notify(ctx, []string{usr.ID}, notification.NewNotification{
		Kind:  notification.KindOnboarding,
		Title: "Your application was not approved",
		Body:  ro.Reason,
	})
	return usr, errors.Wrap(err, "notifying user")
}


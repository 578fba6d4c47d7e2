package echoapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

const pwd = "LolC@t123"

func Test_userApi_login(t *testing.T) {
	env, app := setup(t)

	testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runHTTPTests(t, app, tests)

	for _, uname := range []string{"hero", " HERO@test.cd "} {
		t.Run("logged in as "+strings.TrimSpace(uname), func(t *testing.T) {
			rec := do(t, app, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: uname, Password: pwd})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			unmarshal(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)

			rec = do(t, app, http.MethodGet, "/v1/users/me", resp.Token, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `"username":"hero"`)
		})
	}
}

func Test_userApi_loginThrottled(t *testing.T) {
	env, app := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)

	for i := 0; i < env.Conf.Server.LoginAttempts; i++ {
		rec := do(t, app, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "hero", Password: "wrong"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	// even the right password is refused until the window ends
	rec := do(t, app, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "hero", Password: pwd})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"too many attempts, try again later"}`, rec.Body.String())

	// other accounts are unaffected
	testutil.CreateUser(t, env.UserRepo, "King", "king", "king@test.cd", pwd, []string{user.RoleStudent}, true)
	rec = do(t, app, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "king", Password: pwd})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_signup(t *testing.T) {
	env, app := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	t.Run("invalid role", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/users/signup", "", user.SignupUser{
			Name: "Jane Doe", Email: "jane@test.cd", Password: pwd, PasswordConfirm: pwd, Role: "admin",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"role":"role must be one of: student, teacher"}`, rec.Body.String())
	})

	rec := do(t, app, http.MethodPost, "/v1/users/signup", "", user.SignupUser{
		Name: "Jane Doe", Username: "jane", Email: "jane@test.cd", Password: pwd, PasswordConfirm: pwd, Role: "teacher",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var jane user.User
	unmarshal(t, rec, &jane)
	assert.Equal(t, []string{user.RoleTeacher}, jane.Roles)
	assert.Equal(t, user.OnboardingPending, jane.Onboarding.Status)

	// admins hear about it
	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, admin.MailAddress(), msgs[0].To[0])

	t.Run("duplicate", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/users/signup", "", user.SignupUser{
			Name: "Jane Again", Email: "jane@test.cd", Password: pwd, PasswordConfirm: pwd, Role: "student",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	// pending accounts can log in and see themselves, nothing else
	rec = do(t, app, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "jane", Password: pwd})
	require.Equal(t, http.StatusOK, rec.Code)
	var login echoapi.LoginResponse
	unmarshal(t, rec, &login)

	runHTTPTests(t, app, []httpTest{
		{name: "pending: me", path: "/v1/users/me", token: login.Token},
		{name: "pending: notifications", path: "/v1/notifications", token: login.Token},
		{name: "pending: dashboard", path: "/v1/dashboard", token: login.Token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPending)},
		{
			name: "pending: create course", method: http.MethodPost, path: "/v1/courses", token: login.Token,
			body: []byte(`{"title":"Go"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errPending),
		},
		{name: "pending: own detail", path: "/v1/users/" + jane.ID, token: login.Token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPending)},
	})
}

func Test_userApi_onboarding(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	pending := testutil.CreatePendingUser(t, env.UserRepo, "Newbie", "newbie", "newbie@test.cd", pwd, []string{user.RoleTeacher})
	other := testutil.CreatePendingUser(t, env.UserRepo, "Other", "other", "other@test.cd", pwd, []string{user.RoleStudent})

	adminToken := getToken(t, env, admin)
	pendingToken := getToken(t, env, pending)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/onboarding", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/onboarding", token: getToken(t, env, teacher), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "dashboard before approval", path: "/v1/dashboard", token: pendingToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPending)},
	})

	t.Run("list pending", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/onboarding", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page query.Page[user.User]
		unmarshal(t, rec, &page)
		assert.Equal(t, 2, page.Count)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/onboarding/"+other.ID+"/reject", adminToken, user.RejectOnboarding{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"reason":"this field is required"}`, rec.Body.String())
	})

	t.Run("reject", func(t *testing.T) {
		env.Mail.Reset()
		rec := do(t, app, http.MethodPost, "/v1/onboarding/"+other.ID+"/reject", adminToken, user.RejectOnboarding{Reason: "No ID provided"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, user.OnboardingRejected, usr.Onboarding.Status)
		assert.Equal(t, "No ID provided", usr.Onboarding.Reason)
		assert.Equal(t, admin.ID, usr.Onboarding.ReviewedBy)
		require.Len(t, env.Mail.SentMessages(), 1)
	})

	t.Run("approve", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/onboarding/"+pending.ID+"/approve", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// the old token works right away
		rec = do(t, app, http.MethodGet, "/v1/dashboard", pendingToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(t, app, http.MethodGet, "/v1/notifications/unread-count", pendingToken, nil)
		assert.JSONEq(t, `{"count":1}`, rec.Body.String())
	})

	t.Run("already reviewed", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/onboarding/"+pending.ID+"/approve", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/onboarding/lol/approve", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_userQuery(t *testing.T) {
	env, app := setup(t)

	now := time.Now()
	usr1 := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "", nil, true, now.Add(1*time.Hour))
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true, now.Add(2*time.Hour))
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(3*time.Hour))
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, now.Add(4*time.Hour))
	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false, now.Add(5*time.Hour))

	adminToken := getToken(t, env, admin)
	page := func(limit int, users ...user.User) []byte {
		p := query.NewPage(users, len(users), query.Query{Page: 1, Limit: limit})
		return marchallObj(t, p)
	}

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", path: "/v1/users", token: getToken(t, env, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: page(10, naughty, teacher, admin, student, usr1)},
		{name: "search=USE", path: "/v1/users?search=USE", token: adminToken, wantData: page(10, student, usr1)},
		{name: "role=teacher:", path: "/v1/users?role=teacher:", token: adminToken, wantData: page(10, teacher)},
		{name: "is_active=false", path: "/v1/users?is_active=false", token: adminToken, wantData: page(10, naughty)},
		{name: "ordering=username", path: "/v1/users?ordering=username&limit=2", token: adminToken, wantData: func() []byte {
			p := query.NewPage([]user.User{admin, usr1}, 5, query.Query{Page: 1, Limit: 2})
			return marchallObj(t, p)
		}()},
		{
			name: "invalid filter value", path: "/v1/users?is_active=lol", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"is_active":"invalid value"}`),
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_userDetail(t *testing.T) {
	env, app := setup(t)

	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.UserRepo, "King", "king", "king@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	owner := testutil.CreateUser(t, env.UserRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true)

	studentToken := getToken(t, env, student)
	adminToken := getToken(t, env, admin)

	runHTTPTests(t, app, []httpTest{
		{name: "self", path: "/v1/users/" + student.ID, token: studentToken, wantData: marchallObj(t, student)},
		{name: "someone else", path: "/v1/users/" + other.ID, token: studentToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "admin sees all", path: "/v1/users/" + other.ID, token: adminToken, wantData: marchallObj(t, other)},
		{
			name: "students cannot change roles", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body: []byte(`{"name":"Hero","roles":["admin:"]}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admins cannot grant higher roles", method: http.MethodPut, path: "/v1/users/" + student.ID, token: adminToken,
			body:     []byte(`{"name":"Hero","roles":["admin:owner"]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"roles":"not enough rights to set these roles"}`),
		},
		{name: "no self deletion", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "no deleting superiors", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "students cannot delete", method: http.MethodDelete, path: "/v1/users/" + student.ID, token: studentToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "bulk delete refuses self", method: http.MethodDelete, path: "/v1/users?id=" + student.ID + "&id=" + admin.ID,
			token: adminToken, wantCode: http.StatusForbidden,
		},
		{name: "bulk delete", method: http.MethodDelete, path: "/v1/users?id=" + student.ID, token: adminToken, wantCode: http.StatusNoContent},
	})

	// a deleted user's token is no longer accepted
	rec := do(t, app, http.MethodGet, "/v1/users/me", studentToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_userApi_userRefreshToken(t *testing.T) {
	env, app := setup(t)

	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false) // 😂
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    env.Conf.AppName,
			Subject:   student.ID,
			Audience:  "Darasa",
			ExpiresAt: now.Add(env.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * env.Conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsStudent:    student.IsStudent(),
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims, env.Conf.SecretKey)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Bad token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "Inactive user not allowed", token: getToken(t, env, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runHTTPTests(t, app, tests)

	t.Run("Token refreshed", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/users/token-refresh", getToken(t, env, student), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		// cannot guess new token.. just check that it's not empty
		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}

func Test_userApi_userResetPassword(t *testing.T) {
	env, app := setup(t)

	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: student.MailAddress()},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			env.Mail.Reset()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				msgs := env.Mail.SentMessages()
				if !extra.emailSent {
					assert.Empty(t, msgs)
					return
				}
				require.Len(t, msgs, 1)
				msg := msgs[0]
				assert.Equal(t, extra.to, msg.To[0])
				assert.Contains(t, msg.TextContent, extra.to.Name)
				assert.Contains(t, msg.HTMLContent, extra.to.Name)
				assert.Contains(t, msg.TextContent, "/password-reset/"+user.EncodeUID(student)+"/")
			}
		})
	}
}

func Test_userApi_userConfirmPasswordReset(t *testing.T) {
	env, app := setup(t)

	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "user3@test.cd", "lol", []string{user.RoleStudent}, true)
	validUID := user.EncodeUID(student)
	tokens := user.NewResetTokens(env.Conf.SecretKey, env.Conf.Server.PasswordResetTimeoutDelta)
	validToken := tokens.Issue(student)

	// a token issued a day past its lifetime
	dayLate := env.Conf.Server.PasswordResetTimeoutDelta + (24 * time.Hour)
	now := core.NowFunc
	core.NowFunc = func() time.Time { return now().Add(-dayLate) }
	expiredToken := tokens.Issue(student)
	core.NowFunc = now

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: "password must contain at least 8 characters", PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid pwd: too common", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "P@$$w0rd", PasswordConfirm: "P@$$w0rd"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password is too common"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "bG9s", Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, user.ResetUserPassword{UID: "invalid value"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "l9x2k1.c2lnbmF0dXJl", UID: validUID, Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, user.ResetUserPassword{Token: "invalid value"}),
		},
		{
			name: "expired token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: expiredToken, UID: validUID, Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, user.ResetUserPassword{Token: "invalid value"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	tests = append(tests, httpTest{
		name: "used token", wantCode: http.StatusBadRequest,
		body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: pwd + "2", PasswordConfirm: pwd + "2"}),
		wantData: marchallObj(t, user.ResetUserPassword{Token: "invalid value"}),
	})
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/password-reset-confirm"
	}
	runHTTPTests(t, app, tests)

	refreshed, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	if bytes.Equal(refreshed.PasswordHash, student.PasswordHash) {
		t.Fatalf("failed to update new password")
	}
	assert.NoError(t, refreshed.CheckPassword(pwd))
	assert.NotNil(t, refreshed.PasswordChangedAt)
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)

	if err := handlers.RegisterValidations(); err != nil {
		panic(err)
	}
}

// Fake implementation of the handlers.AccountService interface

type fakeAccountService struct {
	registerFn       func(ctx context.Context, firstName, lastName, email, password string) (user.User, error)
	loginFn          func(ctx context.Context, email, password string) (user.User, string, error)
	currentUserFn    func(ctx context.Context, token string) (user.User, error)
	updateProfileFn  func(ctx context.Context, token, firstName, lastName string) (user.User, error)
	changePasswordFn func(ctx context.Context, token, oldPassword, newPassword string) (user.User, error)
	logoutFn         func(ctx context.Context, token string) error
}

func (f *fakeAccountService) Register(ctx context.Context, firstName, lastName, email, password string) (user.User, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, firstName, lastName, email, password)
	}
	return user.User{}, nil
}

func (f *fakeAccountService) Login(ctx context.Context, email, password string) (user.User, string, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, email, password)
	}
	return user.User{}, "", nil
}

func (f *fakeAccountService) CurrentUser(ctx context.Context, token string) (user.User, error) {
	if f.currentUserFn != nil {
		return f.currentUserFn(ctx, token)
	}
	return user.User{}, nil
}

func (f *fakeAccountService) UpdateProfile(ctx context.Context, token, firstName, lastName string) (user.User, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, token, firstName, lastName)
	}
	return user.User{}, nil
}

func (f *fakeAccountService) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (user.User, error) {
	if f.changePasswordFn != nil {
		return f.changePasswordFn(ctx, token, oldPassword, newPassword)
	}
	return user.User{}, nil
}

func (f *fakeAccountService) Logout(ctx context.Context, token string) error {
	if f.logoutFn != nil {
		return f.logoutFn(ctx, token)
	}
	return nil
}

// fake resolver for the auth middleware

type fakeResolver struct {
	resolveFn func(ctx context.Context, raw string) (string, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, raw string) (string, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, raw)
	}
	return "user-1", nil
}

func newTestRouter(svc handlers.AccountService, resolver middlewares.TokenResolver) *gin.Engine {
	r := gin.New()

	h := handlers.NewAccountsHandler(svc, nil, false)
	authMw := middlewares.NewAuthMiddleware(resolver)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	protected := r.Group("/", authMw.RequireAuth())
	protected.GET("/user/show", h.Show)
	protected.POST("/user/update", h.Update)
	protected.POST("/user/change_password", h.ChangePassword)
	protected.POST("/logout", h.Logout)

	return r
}

func doJSON(router http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}

	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}

	return out
}

func TestRegisterSuccess(t *testing.T) {
	svc := &fakeAccountService{
		registerFn: func(ctx context.Context, firstName, lastName, email, password string) (user.User, error) {
			return user.User{ID: "u1", Email: email, FirstName: firstName, LastName: lastName, PasswordHash: "bcrypt$..."}, nil
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/register",
		`{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","password":"Passw0rd!"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	body := mustReadJSON(t, w)

	if body["message"] != "Your account created successfully." {
		t.Errorf("message = %v", body["message"])
	}

	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data missing: %v", body)
	}

	if data["email"] != "jane@example.com" {
		t.Errorf("data.email = %v", data["email"])
	}

	if _, leaked := data["password_hash"]; leaked {
		t.Errorf("password hash leaked in response: %v", data)
	}
}

func TestRegisterValidationFailure(t *testing.T) {
	router := newTestRouter(&fakeAccountService{}, &fakeResolver{})

	// password fails the policy (no upper case letter)
	w := doJSON(router, http.MethodPost, "/register",
		`{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","password":"alllowercase1!"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}

	body := mustReadJSON(t, w)

	if body["message"] != "Invalid request body" {
		t.Errorf("message = %v", body["message"])
	}

	if body["errors"] == nil {
		t.Errorf("expected field errors, body=%s", w.Body.String())
	}
}

func TestRegisterMissingFields(t *testing.T) {
	router := newTestRouter(&fakeAccountService{}, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/register", `{"email":"jane@example.com"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRegisterConflict(t *testing.T) {
	svc := &fakeAccountService{
		registerFn: func(ctx context.Context, firstName, lastName, email, password string) (user.User, error) {
			return user.User{}, postgres.ErrEmailAlreadyUsed
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/register",
		`{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","password":"Passw0rd!"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	body := mustReadJSON(t, w)

	if body["message"] != "The email has already been taken." {
		t.Errorf("message = %v", body["message"])
	}
}

func TestLoginSuccessIncludesToken(t *testing.T) {
	svc := &fakeAccountService{
		loginFn: func(ctx context.Context, email, password string) (user.User, string, error) {
			return user.User{Email: email, FirstName: "Jane", LastName: "Doe"}, "raw-token", nil
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/login",
		`{"email":"jane@example.com","password":"Passw0rd!"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	body := mustReadJSON(t, w)

	if body["message"] != "Login successfully." {
		t.Errorf("message = %v", body["message"])
	}

	data := body["data"].(map[string]interface{})

	if data["token"] != "raw-token" {
		t.Errorf("data.token = %v", data["token"])
	}
}

func TestLoginErrorMessagesAreDistinct(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown email", service.ErrEmailNotFound, http.StatusUnauthorized, "Email not exists. Please try again."},
		{"bad password", service.ErrIncorrectPassword, http.StatusUnauthorized, "Incorrect password. Please try again."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAccountService{
				loginFn: func(ctx context.Context, email, password string) (user.User, string, error) {
					return user.User{}, "", tc.err
				},
			}

			router := newTestRouter(svc, &fakeResolver{})

			w := doJSON(router, http.MethodPost, "/login",
				`{"email":"jane@example.com","password":"Passw0rd!"}`, "")

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}

			body := mustReadJSON(t, w)

			if body["message"] != tc.message {
				t.Errorf("message = %v, want %q", body["message"], tc.message)
			}
		})
	}
}

func TestLoginValidatesInputBeforeCredentials(t *testing.T) {
	called := false

	svc := &fakeAccountService{
		loginFn: func(ctx context.Context, email, password string) (user.User, string, error) {
			called = true
			return user.User{}, "", nil
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	// malformed email never reaches the service, and fails 400 not 401
	w := doJSON(router, http.MethodPost, "/login", `{"email":"not-an-email","password":"Passw0rd!"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	if called {
		t.Errorf("service called with invalid input")
	}
}

func TestShowRequiresToken(t *testing.T) {
	router := newTestRouter(&fakeAccountService{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/user/show", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestShowReturnsCurrentUser(t *testing.T) {
	svc := &fakeAccountService{
		currentUserFn: func(ctx context.Context, token string) (user.User, error) {
			if token != "tok-1" {
				t.Errorf("token threaded through = %q, want tok-1", token)
			}
			return user.User{ID: "u1", Email: "jane@example.com"}, nil
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodGet, "/user/show", "", "tok-1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	body := mustReadJSON(t, w)
	data := body["data"].(map[string]interface{})

	if data["email"] != "jane@example.com" {
		t.Errorf("data.email = %v", data["email"])
	}
}

func TestShowUserGone(t *testing.T) {
	svc := &fakeAccountService{
		currentUserFn: func(ctx context.Context, token string) (user.User, error) {
			return user.User{}, postgres.ErrUserNotFound
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodGet, "/user/show", "", "tok-1")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	body := mustReadJSON(t, w)

	if body["message"] != "User not found." {
		t.Errorf("message = %v", body["message"])
	}
}

func TestChangePasswordOldMismatch(t *testing.T) {
	svc := &fakeAccountService{
		changePasswordFn: func(ctx context.Context, token, oldPassword, newPassword string) (user.User, error) {
			return user.User{}, service.ErrOldPasswordMismatch
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/user/change_password",
		`{"old_password":"Wrong-Old1","new_password":"New-Passw0rd"}`, "tok-1")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	body := mustReadJSON(t, w)

	if body["message"] != "Old password doesn't match. Please try again." {
		t.Errorf("message = %v", body["message"])
	}
}

func TestLogout(t *testing.T) {
	revoked := ""

	svc := &fakeAccountService{
		logoutFn: func(ctx context.Context, token string) error {
			revoked = token
			return nil
		},
	}

	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodPost, "/logout", "", "tok-1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	body := mustReadJSON(t, w)

	if body["message"] != "User logged out." {
		t.Errorf("message = %v", body["message"])
	}

	if revoked != "tok-1" {
		t.Errorf("logout token = %q, want tok-1", revoked)
	}
}

func TestStoreErrorsHiddenByDefault(t *testing.T) {
	boom := errors.New("pq: connection refused on 10.0.0.3")

	svc := &fakeAccountService{
		currentUserFn: func(ctx context.Context, token string) (user.User, error) {
			return user.User{}, boom
		},
	}

	// default: generic message
	router := newTestRouter(svc, &fakeResolver{})

	w := doJSON(router, http.MethodGet, "/user/show", "", "tok-1")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	body := mustReadJSON(t, w)

	if body["message"] != "Something went wrong. Please try again." {
		t.Errorf("raw store error leaked by default: %v", body["message"])
	}

	// legacy flag: raw message surfaces
	r := gin.New()
	h := handlers.NewAccountsHandler(svc, nil, true)
	authMw := middlewares.NewAuthMiddleware(&fakeResolver{})
	r.GET("/user/show", authMw.RequireAuth(), h.Show)

	w = doJSON(r, http.MethodGet, "/user/show", "", "tok-1")

	body = mustReadJSON(t, w)

	if body["message"] != boom.Error() {
		t.Errorf("message = %v, want raw error with debug flag", body["message"])
	}
}

func TestRevokedTokenRejectedByMiddleware(t *testing.T) {
	resolver := &fakeResolver{
		resolveFn: func(ctx context.Context, raw string) (string, error) {
			return "", auth.ErrInvalidToken
		},
	}

	router := newTestRouter(&fakeAccountService{}, resolver)

	w := doJSON(router, http.MethodGet, "/user/show", "", "revoked-token")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

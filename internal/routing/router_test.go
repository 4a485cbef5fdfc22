package routing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"server-imago/internal/images"
	"server-imago/internal/managers"
	"server-imago/internal/managers/mocks"
)

// define request payload for user registration
type User struct {
	UserId         string `json:"userId,omitempty"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	HashedPassword string `json:"-"`
	Email          string `json:"email,omitempty"`
}

type testEnv struct {
	DatabaseMgr *mocks.MockDatabaseManager
	JWTMgr      managers.JWTMgr
	MailMgr     *mocks.MockMailManager
	Store       *images.Store
	Server      *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	poolMock, err := pgxmock.NewPool()
	if err != nil {
		log.Errorf("Error creating mock database pool: %v", err)
	}

	databaseMgrMock := &mocks.MockDatabaseManager{}
	databaseMgrMock.On("GetPool").Return(poolMock)

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Errorf("Error generating key pair: %v", err)
	}
	blacklist := managers.NewMemoryBlacklist()
	jwtMgr := managers.NewJWTManager(privateKey, publicKey, blacklist, true)

	mailMgrMock := &mocks.MockMailManager{}
	mailMgrMock.On("SendConfirmationMail", mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.Anything).Return(nil)
	mailMgrMock.On("SendWelcomeMail", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)

	store, err := images.NewStore(t.TempDir(), []string{"jpg", "jpeg", "png", "gif"})
	if err != nil {
		t.Fatalf("Error creating image store: %v", err)
	}

	router := InitRouter(databaseMgrMock, mailMgrMock, jwtMgr, blacklist, store, false)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		DatabaseMgr: databaseMgrMock,
		JWTMgr:      jwtMgr,
		MailMgr:     mailMgrMock,
		Store:       store,
		Server:      server,
	}
}

func (env *testEnv) poolMock() pgxmock.PgxPoolIface {
	return env.DatabaseMgr.GetPool().(pgxmock.PgxPoolIface)
}

func TestUserRegistration(t *testing.T) {
	createUserRequest := func() User {
		return User{
			Username: "testUser",
			Password: "test.Password123",
			Email:    "test@example.com",
		}
	}

	createUserRequestWithInvalidEmail := func() User {
		return User{
			Username: "testUser",
			Password: "test.Password123",
			Email:    "test@example@.com",
		}
	}

	createUserRequestWithDuplicateUsername := func() User {
		return User{
			Username: "duplicateUser",
			Password: "duplicate.Password123",
			Email:    "duplicate@example.com",
		}
	}

	createUserRequestWithDuplicateEmail := func() User {
		return User{
			Username: "someoneElse",
			Password: "duplicate.Password123",
			Email:    "duplicate@example.com",
		}
	}

	testCases := []struct {
		name   string
		user   User
		status int
	}{
		{"ValidRegistration", createUserRequest(), http.StatusCreated},
		{"InvalidEmail", createUserRequestWithInvalidEmail(), http.StatusBadRequest},
		{"DuplicateUsername", createUserRequestWithDuplicateUsername(), http.StatusConflict},
		{"DuplicateEmail", createUserRequestWithDuplicateEmail(), http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t)
			poolMock := env.poolMock()

			// Mock database calls
			switch tc.name {
			case "InvalidEmail":
				// The validation middleware rejects the body before any database call
			case "DuplicateUsername":
				poolMock.ExpectBegin()
				poolMock.ExpectQuery("SELECT username, email").WithArgs(tc.user.Username, tc.user.Email).
					WillReturnRows(pgxmock.NewRows([]string{"username", "email"}).AddRow(tc.user.Username, tc.user.Email))
				poolMock.ExpectRollback()
			case "DuplicateEmail":
				// The existing row shares the email but not the username
				poolMock.ExpectBegin()
				poolMock.ExpectQuery("SELECT username, email").WithArgs(tc.user.Username, tc.user.Email).
					WillReturnRows(pgxmock.NewRows([]string{"username", "email"}).AddRow("duplicateUser", tc.user.Email))
				poolMock.ExpectRollback()
			default:
				poolMock.ExpectBegin()
				poolMock.ExpectQuery("SELECT username, email").WithArgs(tc.user.Username, tc.user.Email).
					WillReturnRows(pgxmock.NewRows([]string{"username", "email"}))
				poolMock.ExpectExec("INSERT INTO imago_schema.users").
					WithArgs(pgxmock.AnyArg(), tc.user.Username, tc.user.Email, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				poolMock.ExpectExec("INSERT INTO imago_schema.confirmations").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				poolMock.ExpectCommit()
			}

			expect := httpexpect.Default(t, env.Server.URL)
			response := expect.POST("/api/users").WithJSON(tc.user).Expect().Status(tc.status)

			switch tc.name {
			case "ValidRegistration":
				obj := response.JSON().Object()
				obj.HasValue("username", tc.user.Username)
				obj.HasValue("email", tc.user.Email)
				obj.Value("userId").String().NotEmpty()
				obj.Value("confirmation").Object().HasValue("confirmed", false)
			case "InvalidEmail":
				response.JSON().Object().Value("error").Object().HasValue("code", "ERR-001")
			case "DuplicateUsername":
				response.JSON().Object().Value("error").Object().HasValue("code", "ERR-002")
			case "DuplicateEmail":
				response.JSON().Object().Value("error").Object().HasValue("code", "ERR-003")
			}

			if err := poolMock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestRegistrationMailFailureRollsBack(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()

	user := User{
		Username: "testUser",
		Password: "test.Password123",
		Email:    "test@example.com",
	}

	// Replace the default mail expectation with a delivery failure
	env.MailMgr.ExpectedCalls = nil
	env.MailMgr.On("SendConfirmationMail", mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.Anything).
		Return(errors.New("smtp connection refused"))

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT username, email").WithArgs(user.Username, user.Email).
		WillReturnRows(pgxmock.NewRows([]string{"username", "email"}))
	poolMock.ExpectExec("INSERT INTO imago_schema.users").
		WithArgs(pgxmock.AnyArg(), user.Username, user.Email, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectExec("INSERT INTO imago_schema.confirmations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectRollback()

	expect := httpexpect.Default(t, env.Server.URL)
	response := expect.POST("/api/users").WithJSON(user).Expect().Status(http.StatusInternalServerError)

	errObj := response.JSON().Object().Value("error").Object()
	errObj.HasValue("code", "ERR-016")
	errObj.HasValue("message", "The confirmation email could not be sent: smtp connection refused.")

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestUserLogin(t *testing.T) {
	createLoginRequest := func() User {
		u := User{
			UserId:   uuid.New().String(),
			Username: "testUser",
			Password: "test.Password123",
			Email:    "test@example.com",
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		u.HashedPassword = string(hash)

		return u
	}

	testCases := []struct {
		name   string
		status int
	}{
		{"ValidLogin", http.StatusOK},
		{"NotConfirmed", http.StatusBadRequest},
		{"WrongPassword", http.StatusUnauthorized},
		{"UnknownUsername", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t)
			poolMock := env.poolMock()
			user := createLoginRequest()

			// Mock database calls
			switch tc.name {
			case "ValidLogin":
				poolMock.ExpectQuery("SELECT user_id, email, password").WithArgs(user.Username).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password"}).
						AddRow(user.UserId, user.Email, user.HashedPassword))
				poolMock.ExpectQuery("SELECT confirmed").WithArgs(user.UserId).
					WillReturnRows(pgxmock.NewRows([]string{"confirmed"}).AddRow(true))
			case "NotConfirmed":
				poolMock.ExpectQuery("SELECT user_id, email, password").WithArgs(user.Username).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password"}).
						AddRow(user.UserId, user.Email, user.HashedPassword))
				poolMock.ExpectQuery("SELECT confirmed").WithArgs(user.UserId).
					WillReturnRows(pgxmock.NewRows([]string{"confirmed"}).AddRow(false))
			case "WrongPassword":
				wrongHash, _ := bcrypt.GenerateFromPassword([]byte("other.Password123"), bcrypt.DefaultCost)
				poolMock.ExpectQuery("SELECT user_id, email, password").WithArgs(user.Username).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password"}).
						AddRow(user.UserId, user.Email, string(wrongHash)))
			case "UnknownUsername":
				poolMock.ExpectQuery("SELECT user_id, email, password").WithArgs(user.Username).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password"}))
			}

			expect := httpexpect.Default(t, env.Server.URL)
			response := expect.POST("/api/users/login").WithJSON(user).Expect().Status(tc.status)

			switch tc.name {
			case "ValidLogin":
				obj := response.JSON().Object()
				obj.Value("token").String().NotEmpty()
				obj.Value("refreshToken").String().NotEmpty()
			case "NotConfirmed":
				errObj := response.JSON().Object().Value("error").Object()
				errObj.HasValue("code", "ERR-021")
				errObj.HasValue("message", fmt.Sprintf("You have not confirmed your registration, please check your email <%s>.", user.Email))
			case "WrongPassword", "UnknownUsername":
				response.JSON().Object().Value("error").Object().HasValue("code", "ERR-005")
			}

			if err := poolMock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestEnv(t)

	token, err := env.JWTMgr.GenerateAccessToken(uuid.New().String(), "testUser", true)
	if err != nil {
		t.Fatalf("Error generating access token: %v", err)
	}

	expect := httpexpect.Default(t, env.Server.URL)

	// First logout succeeds and revokes the token
	expect.POST("/api/users/logout").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNoContent)

	// The revoked token no longer passes the guard
	expect.POST("/api/users/logout").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusUnauthorized).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-014")
}

func TestRefreshToken(t *testing.T) {
	env := setupTestEnv(t)
	userId := uuid.New().String()

	refreshToken, err := env.JWTMgr.GenerateRefreshToken(userId, "testUser")
	if err != nil {
		t.Fatalf("Error generating refresh token: %v", err)
	}

	expect := httpexpect.Default(t, env.Server.URL)

	// A refresh token cannot be used on guarded routes directly
	expect.POST("/api/users/logout").WithHeader("Authorization", "Bearer "+refreshToken).
		Expect().Status(http.StatusUnauthorized)

	// Minting a new access token from the refresh token works
	response := expect.POST("/api/users/refresh").
		WithJSON(map[string]string{"refreshToken": refreshToken}).
		Expect().Status(http.StatusOK)
	newToken := response.JSON().Object().Value("token").String().NotEmpty().Raw()

	// The refreshed token is not fresh, so the password route rejects it
	expect.POST("/api/users/set-password").WithHeader("Authorization", "Bearer "+newToken).
		WithJSON(map[string]string{"username": "testUser", "newPassword": "new.Password123"}).
		Expect().Status(http.StatusForbidden).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-007")

	// An access token is not accepted as a refresh token
	accessToken, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect.POST("/api/users/refresh").
		WithJSON(map[string]string{"refreshToken": accessToken}).
		Expect().Status(http.StatusUnauthorized)
}

func TestSetPassword(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()
	userId := uuid.New().String()

	freshToken, err := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	if err != nil {
		t.Fatalf("Error generating access token: %v", err)
	}

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT email, user_id").WithArgs("testUser").
		WillReturnRows(pgxmock.NewRows([]string{"email", "user_id"}).AddRow("test@example.com", userId))
	poolMock.ExpectExec("UPDATE imago_schema.users").WithArgs(pgxmock.AnyArg(), userId).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	poolMock.ExpectCommit()

	expect := httpexpect.Default(t, env.Server.URL)
	expect.POST("/api/users/set-password").WithHeader("Authorization", "Bearer "+freshToken).
		WithJSON(map[string]string{"username": "testUser", "newPassword": "new.Password123"}).
		Expect().Status(http.StatusNoContent)

	// An unknown username yields a not-found
	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT email, user_id").WithArgs("ghostUser").
		WillReturnRows(pgxmock.NewRows([]string{"email", "user_id"}))
	poolMock.ExpectRollback()

	expect.POST("/api/users/set-password").WithHeader("Authorization", "Bearer "+freshToken).
		WithJSON(map[string]string{"username": "ghostUser", "newPassword": "new.Password123"}).
		Expect().Status(http.StatusNotFound).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-004")

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetUser(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()
	userId := uuid.New().String()
	confirmationId := uuid.New().String()
	expiresAt := time.Now().Add(24 * time.Hour)

	token, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect := httpexpect.Default(t, env.Server.URL)

	poolMock.ExpectQuery("SELECT user_id, username, email").WithArgs(userId).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "username", "email"}).
			AddRow(userId, "testUser", "test@example.com"))
	poolMock.ExpectQuery("SELECT confirmation_id, expires_at, confirmed").WithArgs(userId).
		WillReturnRows(pgxmock.NewRows([]string{"confirmation_id", "expires_at", "confirmed"}).
			AddRow(confirmationId, expiresAt, true))

	obj := expect.GET("/api/users/"+userId).WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusOK).JSON().Object()
	obj.HasValue("userId", userId)
	obj.HasValue("username", "testUser")
	obj.NotContainsKey("password")
	obj.Value("confirmation").Object().HasValue("confirmationId", confirmationId)
	obj.Value("confirmation").Object().HasValue("confirmed", true)

	// Unknown users yield a not-found
	unknownId := uuid.New().String()
	poolMock.ExpectQuery("SELECT user_id, username, email").WithArgs(unknownId).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "username", "email"}))

	expect.GET("/api/users/"+unknownId).WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNotFound).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-004")

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()
	userId := uuid.New().String()

	token, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect := httpexpect.Default(t, env.Server.URL)

	poolMock.ExpectBegin()
	poolMock.ExpectExec("DELETE FROM imago_schema.users").WithArgs(userId).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	poolMock.ExpectCommit()

	expect.DELETE("/api/users/"+userId).WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNoContent)

	poolMock.ExpectBegin()
	poolMock.ExpectExec("DELETE FROM imago_schema.users").WithArgs(userId).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	poolMock.ExpectRollback()

	expect.DELETE("/api/users/"+userId).WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNotFound).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-004")

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestConfirmUser(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		errorCode string
	}{
		{"Valid", http.StatusOK, ""},
		{"Expired", http.StatusBadRequest, "ERR-009"},
		{"AlreadyConfirmed", http.StatusAlreadyReported, "ERR-010"},
		{"NotFound", http.StatusNotFound, "ERR-008"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t)
			poolMock := env.poolMock()
			userId := uuid.New().String()
			confirmationId := uuid.New().String()

			poolMock.ExpectBegin()
			switch tc.name {
			case "Valid":
				poolMock.ExpectQuery("SELECT user_id, expires_at, confirmed").WithArgs(confirmationId).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at", "confirmed"}).
						AddRow(userId, time.Now().Add(time.Hour), false))
				poolMock.ExpectExec("UPDATE imago_schema.confirmations").WithArgs(confirmationId).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				poolMock.ExpectQuery("SELECT email, username").WithArgs(userId).
					WillReturnRows(pgxmock.NewRows([]string{"email", "username"}).
						AddRow("test@example.com", "testUser"))
				poolMock.ExpectCommit()
			case "Expired":
				poolMock.ExpectQuery("SELECT user_id, expires_at, confirmed").WithArgs(confirmationId).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at", "confirmed"}).
						AddRow(userId, time.Now().Add(-time.Hour), false))
				poolMock.ExpectRollback()
			case "AlreadyConfirmed":
				poolMock.ExpectQuery("SELECT user_id, expires_at, confirmed").WithArgs(confirmationId).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at", "confirmed"}).
						AddRow(userId, time.Now().Add(time.Hour), true))
				poolMock.ExpectRollback()
			case "NotFound":
				poolMock.ExpectQuery("SELECT user_id, expires_at, confirmed").WithArgs(confirmationId).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at", "confirmed"}))
				poolMock.ExpectRollback()
			}

			expect := httpexpect.Default(t, env.Server.URL)
			response := expect.POST("/api/confirm/" + confirmationId).Expect().Status(tc.status)

			if tc.errorCode != "" {
				response.JSON().Object().Value("error").Object().HasValue("code", tc.errorCode)
			} else {
				obj := response.JSON().Object()
				obj.HasValue("confirmationId", confirmationId)
				obj.HasValue("confirmed", true)
			}

			if err := poolMock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestResendConfirmation(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()
	userId := uuid.New().String()

	token, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect := httpexpect.Default(t, env.Server.URL)

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT email, user_id").WithArgs("testUser").
		WillReturnRows(pgxmock.NewRows([]string{"email", "user_id"}).AddRow("test@example.com", userId))
	poolMock.ExpectQuery("SELECT confirmed").WithArgs(userId).
		WillReturnRows(pgxmock.NewRows([]string{"confirmed"}).AddRow(false))
	poolMock.ExpectExec("INSERT INTO imago_schema.confirmations").
		WithArgs(pgxmock.AnyArg(), userId, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectCommit()

	expect.POST("/api/users/testUser/resend-confirmation").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNoContent)

	// Already confirmed accounts are reported as such
	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT email, user_id").WithArgs("testUser").
		WillReturnRows(pgxmock.NewRows([]string{"email", "user_id"}).AddRow("test@example.com", userId))
	poolMock.ExpectQuery("SELECT confirmed").WithArgs(userId).
		WillReturnRows(pgxmock.NewRows([]string{"confirmed"}).AddRow(true))
	poolMock.ExpectRollback()

	expect.POST("/api/users/testUser/resend-confirmation").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusAlreadyReported).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-010")

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestImageUploadAndFetch(t *testing.T) {
	env := setupTestEnv(t)
	userId := uuid.New().String()

	token, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect := httpexpect.Default(t, env.Server.URL)

	// Upload stores the file under its own name
	expect.POST("/api/images").WithHeader("Authorization", "Bearer "+token).
		WithMultipart().WithFileBytes("image", "photo.png", []byte("first")).
		Expect().Status(http.StatusCreated).
		JSON().Object().HasValue("filename", "photo.png")

	// A second upload with the same name gets a numbered variant
	expect.POST("/api/images").WithHeader("Authorization", "Bearer "+token).
		WithMultipart().WithFileBytes("image", "photo.png", []byte("second")).
		Expect().Status(http.StatusCreated).
		JSON().Object().HasValue("filename", "photo(1).png")

	// Both files are retrievable and kept apart
	expect.GET("/api/images/photo.png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusOK).Body().IsEqual("first")
	expect.GET("/api/images/photo(1).png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusOK).Body().IsEqual("second")

	// Disallowed extensions are rejected
	expect.POST("/api/images").WithHeader("Authorization", "Bearer "+token).
		WithMultipart().WithFileBytes("image", "script.exe", []byte("nope")).
		Expect().Status(http.StatusBadRequest).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-012")

	// Unsafe names never reach the filesystem
	expect.GET("/api/images/stray..name.png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusBadRequest).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-011")

	// Deletion removes the file, a second delete is a not-found
	expect.DELETE("/api/images/photo.png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNoContent)
	expect.DELETE("/api/images/photo.png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNotFound).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-013")
	expect.GET("/api/images/photo.png").WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusNotFound)
}

func TestAvatarReplaceOnUpload(t *testing.T) {
	env := setupTestEnv(t)
	userId := uuid.New().String()

	token, _ := env.JWTMgr.GenerateAccessToken(userId, "testUser", true)
	expect := httpexpect.Default(t, env.Server.URL)

	// No avatar yet
	expect.GET("/api/avatar/" + userId).Expect().Status(http.StatusNotFound).
		JSON().Object().Value("error").Object().HasValue("code", "ERR-015")

	// First upload stores the avatar under the fixed base name
	expect.PUT("/api/avatar").WithHeader("Authorization", "Bearer "+token).
		WithMultipart().WithFileBytes("image", "me.png", []byte("old avatar")).
		Expect().Status(http.StatusOK).
		JSON().Object().HasValue("filename", "user_"+userId+".png")

	// Replacing with another extension removes the previous file
	expect.PUT("/api/avatar").WithHeader("Authorization", "Bearer "+token).
		WithMultipart().WithFileBytes("image", "next.jpg", []byte("new avatar")).
		Expect().Status(http.StatusOK).
		JSON().Object().HasValue("filename", "user_"+userId+".jpg")

	oldPath := env.Store.GetPath(images.AvatarFolder, "user_"+userId+".png")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expected previous avatar %s to be removed", filepath.Base(oldPath))
	}

	// The avatar is publicly fetchable without credentials
	expect.GET("/api/avatar/" + userId).Expect().Status(http.StatusOK).
		Body().IsEqual("new avatar")
}

func TestHealthRoute(t *testing.T) {
	env := setupTestEnv(t)
	poolMock := env.poolMock()

	poolMock.ExpectPing()

	expect := httpexpect.Default(t, env.Server.URL)
	expect.GET("/health").Expect().Status(http.StatusOK)

	if err := poolMock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"

	"server-imago/internal/managers"
	"server-imago/internal/schemas"
	"server-imago/internal/utils"
)

// confirmationTTL is how long a confirmation link remains usable.
const confirmationTTL = 24 * time.Hour

type UserHdl interface {
	RegisterUser(c *gin.Context)
	LoginUser(c *gin.Context)
	LogoutUser(c *gin.Context)
	RefreshToken(c *gin.Context)
	SetPassword(c *gin.Context)
	GetUser(c *gin.Context)
	DeleteUser(c *gin.Context)
	ConfirmUser(c *gin.Context)
	ResendConfirmation(c *gin.Context)
}

type UserHandler struct {
	DatabaseManager managers.DatabaseMgr
	JWTManager      managers.JWTMgr
	MailManager     managers.MailMgr
	Blacklist       managers.BlacklistMgr
	Validator       *utils.Validator
	VerifyEmail     bool
}

func NewUserHandler(databaseManager managers.DatabaseMgr, jwtManager managers.JWTMgr, mailManager managers.MailMgr,
	blacklist managers.BlacklistMgr, verifyEmail bool) UserHdl {
	return &UserHandler{
		DatabaseManager: databaseManager,
		JWTManager:      jwtManager,
		MailManager:     mailManager,
		Blacklist:       blacklist,
		Validator:       utils.GetValidator(),
		VerifyEmail:     verifyEmail,
	}
}

var errUnauthorized = errors.New("unauthorized")

// RegisterUser registers a new user and sends a confirmation link to the user's
// email. The user row, the initial confirmation and the mail delivery share one
// transaction, so a failed mail rolls the registration back.
func (handler *UserHandler) RegisterUser(c *gin.Context) {
	tx, transactionCtx, cancel := utils.BeginTransaction(c, handler.DatabaseManager.GetPool())
	if tx == nil || transactionCtx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(c, tx, transactionCtx, cancel, err) }()

	registrationRequest := payloadFromContext[schemas.RegistrationRequest](c)
	if registrationRequest == nil {
		return
	}

	// Check if the username or email is taken
	if err = checkUsernameEmailTaken(transactionCtx, c, tx, registrationRequest.Username, registrationRequest.Email); err != nil {
		return
	}

	// Check if the email is reachable
	if handler.VerifyEmail && !handler.Validator.VerifyEmail(registrationRequest.Email) {
		err = errors.New("email unreachable")
		utils.WriteAndLogError(c, schemas.EmailUnreachable, http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(registrationRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	// Insert the user into the database
	userId := uuid.New().String()
	createdAt := time.Now()

	queryString := "INSERT INTO imago_schema.users (user_id, username, email, password, created_at) VALUES ($1, $2, $3, $4, $5)"
	if _, err = tx.Exec(transactionCtx, queryString, userId, registrationRequest.Username, registrationRequest.Email,
		hashedPassword, createdAt); err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	// Create the initial confirmation and send the link to the user
	confirmation, err := createAndSendConfirmation(transactionCtx, c, handler, tx, registrationRequest.Email,
		registrationRequest.Username, userId)
	if err != nil {
		return
	}

	if err = utils.CommitTransaction(c, tx, transactionCtx, cancel); err != nil {
		return
	}

	userDto := &schemas.UserDTO{
		UserId:   userId,
		Username: registrationRequest.Username,
		Email:    registrationRequest.Email,
		Confirmation: &schemas.ConfirmationDTO{
			ConfirmationId: confirmation.ID,
			ExpiresAt:      confirmation.ExpiresAt.Format(time.RFC3339),
			Confirmed:      false,
		},
	}

	utils.WriteAndLogResponse(c, userDto, http.StatusCreated)
}

// LoginUser checks the credentials and, for a confirmed account, returns a
// fresh access token plus a refresh token. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (handler *UserHandler) LoginUser(c *gin.Context) {
	loginRequest := payloadFromContext[schemas.LoginRequest](c)
	if loginRequest == nil {
		return
	}

	ctx, cancel := context.WithDeadline(c.Request.Context(), time.Now().Add(10*time.Second))
	defer cancel()

	pool := handler.DatabaseManager.GetPool()

	var userId, email, password string
	queryString := "SELECT user_id, email, password FROM imago_schema.users WHERE username = $1"
	if err := pool.QueryRow(ctx, queryString, loginRequest.Username).Scan(&userId, &email, &password); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.InvalidCredentials, http.StatusUnauthorized, errors.New("username does not exist"))
			return
		}
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(password), []byte(loginRequest.Password)); err != nil {
		utils.WriteAndLogError(c, schemas.InvalidCredentials, http.StatusUnauthorized, err)
		return
	}

	// The most recent confirmation decides whether the account is usable. An
	// expired but unconfirmed link still counts as not confirmed.
	var confirmed bool
	queryString = "SELECT confirmed FROM imago_schema.confirmations WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1"
	if err := pool.QueryRow(ctx, queryString, userId).Scan(&confirmed); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
	}

	if !confirmed {
		utils.WriteAndLogError(c, schemas.UserNotConfirmed(email), http.StatusBadRequest, errors.New("user not confirmed"))
		return
	}

	tokenDto, err := generateTokenPair(handler, userId, loginRequest.Username)
	if err != nil {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	utils.WriteAndLogResponse(c, tokenDto, http.StatusOK)
}

// LogoutUser revokes the presented access token by inserting its identifier
// into the revocation set. The route guard already rejected revoked tokens,
// so a second logout with the same token never reaches this handler.
func (handler *UserHandler) LogoutUser(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		utils.WriteAndLogError(c, schemas.InvalidToken, http.StatusUnauthorized, errors.New("token has no identifier"))
		return
	}

	if err := handler.Blacklist.Insert(c.Request.Context(), jti, managers.AccessTokenTTL); err != nil {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RefreshToken mints a new, non-fresh access token from a valid refresh token.
func (handler *UserHandler) RefreshToken(c *gin.Context) {
	refreshTokenRequest := payloadFromContext[schemas.RefreshTokenRequest](c)
	if refreshTokenRequest == nil {
		return
	}

	refreshClaims, err := handler.JWTManager.ValidateJWT(c.Request.Context(), refreshTokenRequest.RefreshToken)
	if err != nil {
		utils.WriteAndLogError(c, schemas.InvalidToken, http.StatusUnauthorized, err)
		return
	}

	if isRefreshToken, _ := refreshClaims["refresh"].(bool); !isRefreshToken {
		utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, errors.New("not a refresh token"))
		return
	}

	userId, _ := refreshClaims["sub"].(string)
	username, _ := refreshClaims["username"].(string)

	token, err := handler.JWTManager.GenerateAccessToken(userId, username, false)
	if err != nil {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	utils.WriteAndLogResponse(c, &schemas.TokenDTO{Token: token}, http.StatusOK)
}

// SetPassword overwrites the stored password hash of the named user. The route
// guard requires a fresh access token, i.e. one minted by a password login.
func (handler *UserHandler) SetPassword(c *gin.Context) {
	tx, transactionCtx, cancel := utils.BeginTransaction(c, handler.DatabaseManager.GetPool())
	if tx == nil || transactionCtx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(c, tx, transactionCtx, cancel, err) }()

	setPasswordRequest := payloadFromContext[schemas.SetPasswordRequest](c)
	if setPasswordRequest == nil {
		return
	}

	_, userId, errorOccurred := retrieveUserIdAndEmail(transactionCtx, c, tx, setPasswordRequest.Username)
	if errorOccurred {
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(setPasswordRequest.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	queryString := "UPDATE imago_schema.users SET password = $1 WHERE user_id = $2"
	if _, err = tx.Exec(transactionCtx, queryString, hashedPassword, userId); err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(c, tx, transactionCtx, cancel); err != nil {
		return
	}

	c.Status(http.StatusNoContent)
}

// GetUser returns the outward view of the user specified in the path,
// including their most recent confirmation.
func (handler *UserHandler) GetUser(c *gin.Context) {
	ctx, cancel := context.WithDeadline(c.Request.Context(), time.Now().Add(10*time.Second))
	defer cancel()

	userId := c.Param(utils.UserIdKey)
	pool := handler.DatabaseManager.GetPool()

	user := schemas.User{}
	queryString := "SELECT user_id, username, email FROM imago_schema.users WHERE user_id = $1"
	if err := pool.QueryRow(ctx, queryString, userId).Scan(&user.ID, &user.Username, &user.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	userDto := &schemas.UserDTO{
		UserId:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}

	var confirmationId string
	var expiresAt pgtype.Timestamptz
	var confirmed bool
	queryString = "SELECT confirmation_id, expires_at, confirmed FROM imago_schema.confirmations WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1"
	if err := pool.QueryRow(ctx, queryString, userId).Scan(&confirmationId, &expiresAt, &confirmed); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
	} else {
		userDto.Confirmation = &schemas.ConfirmationDTO{
			ConfirmationId: confirmationId,
			ExpiresAt:      expiresAt.Time.Format(time.RFC3339),
			Confirmed:      confirmed,
		}
	}

	utils.WriteAndLogResponse(c, userDto, http.StatusOK)
}

// DeleteUser removes the user specified in the path. Confirmations are removed
// by the foreign-key cascade.
func (handler *UserHandler) DeleteUser(c *gin.Context) {
	tx, transactionCtx, cancel := utils.BeginTransaction(c, handler.DatabaseManager.GetPool())
	if tx == nil || transactionCtx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(c, tx, transactionCtx, cancel, err) }()

	userId := c.Param(utils.UserIdKey)

	queryString := "DELETE FROM imago_schema.users WHERE user_id = $1"
	commandTag, err := tx.Exec(transactionCtx, queryString, userId)
	if err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if commandTag.RowsAffected() == 0 {
		err = errors.New("user not found")
		utils.WriteAndLogError(c, schemas.UserNotFound, http.StatusNotFound, err)
		return
	}

	if err = utils.CommitTransaction(c, tx, transactionCtx, cancel); err != nil {
		return
	}

	c.Status(http.StatusNoContent)
}

// ConfirmUser resolves a confirmation link. Unknown ids yield a not-found,
// expired links a bad-request, and links that were already used are reported
// as already confirmed without changing anything.
func (handler *UserHandler) ConfirmUser(c *gin.Context) {
	tx, transactionCtx, cancel := utils.BeginTransaction(c, handler.DatabaseManager.GetPool())
	if tx == nil || transactionCtx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(c, tx, transactionCtx, cancel, err) }()

	confirmationId := c.Param(utils.ConfirmationIdKey)

	var userId string
	var expiresAt pgtype.Timestamptz
	var confirmed bool
	queryString := "SELECT user_id, expires_at, confirmed FROM imago_schema.confirmations WHERE confirmation_id = $1"
	if err = tx.QueryRow(transactionCtx, queryString, confirmationId).Scan(&userId, &expiresAt, &confirmed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.ConfirmationNotFound, http.StatusNotFound, errors.New("confirmation not found"))
			return
		}
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if confirmed {
		err = errors.New("already confirmed")
		utils.WriteAndLogError(c, schemas.UserAlreadyConfirmed, http.StatusAlreadyReported, err)
		return
	}

	if time.Now().After(expiresAt.Time) {
		err = errors.New("confirmation expired")
		utils.WriteAndLogError(c, schemas.ConfirmationExpired, http.StatusBadRequest, err)
		return
	}

	queryString = "UPDATE imago_schema.confirmations SET confirmed = TRUE WHERE confirmation_id = $1"
	if _, err = tx.Exec(transactionCtx, queryString, confirmationId); err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	var email, username string
	queryString = "SELECT email, username FROM imago_schema.users WHERE user_id = $1"
	if err = tx.QueryRow(transactionCtx, queryString, userId).Scan(&email, &username); err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(c, tx, transactionCtx, cancel); err != nil {
		return
	}

	// Best effort: the account is confirmed even if the welcome mail fails.
	if mailErr := handler.MailManager.SendWelcomeMail(email, username); mailErr != nil {
		utils.LogMessageWithFieldsAndError(c, "warn", "Error sending welcome mail", mailErr)
	}

	confirmationDto := &schemas.ConfirmationDTO{
		ConfirmationId: confirmationId,
		ExpiresAt:      expiresAt.Time.Format(time.RFC3339),
		Confirmed:      true,
	}
	utils.WriteAndLogResponse(c, confirmationDto, http.StatusOK)
}

// ResendConfirmation creates a new confirmation for the named user and resends
// the link. Accounts that are already confirmed are reported as such.
func (handler *UserHandler) ResendConfirmation(c *gin.Context) {
	tx, transactionCtx, cancel := utils.BeginTransaction(c, handler.DatabaseManager.GetPool())
	if tx == nil || transactionCtx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(c, tx, transactionCtx, cancel, err) }()

	username := c.Param(utils.UsernameKey)

	email, userId, errorOccurred := retrieveUserIdAndEmail(transactionCtx, c, tx, username)
	if errorOccurred {
		return
	}

	var confirmed bool
	queryString := "SELECT confirmed FROM imago_schema.confirmations WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1"
	if err = tx.QueryRow(transactionCtx, queryString, userId).Scan(&confirmed); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	err = nil

	if confirmed {
		err = errors.New("already confirmed")
		utils.WriteAndLogError(c, schemas.UserAlreadyConfirmed, http.StatusAlreadyReported, err)
		return
	}

	if _, err = createAndSendConfirmation(transactionCtx, c, handler, tx, email, username, userId); err != nil {
		return
	}

	if err = utils.CommitTransaction(c, tx, transactionCtx, cancel); err != nil {
		return
	}

	c.Status(http.StatusNoContent)
}

// retrieveUserIdAndEmail retrieves the user ID and email of the user specified by the username.
func retrieveUserIdAndEmail(transactionCtx context.Context, c *gin.Context, tx pgx.Tx, username string) (string, string, bool) {
	queryString := "SELECT email, user_id FROM imago_schema.users WHERE username = $1"

	var email, userId string
	if err := tx.QueryRow(transactionCtx, queryString, username).Scan(&email, &userId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			utils.WriteAndLogError(c, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return "", "", true
		}
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return "", "", true
	}

	return email, userId, false
}

// checkUsernameEmailTaken checks if the username or email is taken.
func checkUsernameEmailTaken(ctx context.Context, c *gin.Context, tx pgx.Tx, username, email string) error {
	queryString := "SELECT username, email FROM imago_schema.users WHERE username = $1 OR email = $2"
	rows, err := tx.Query(ctx, queryString, username, email)
	if err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		var foundUsername string
		var foundEmail string

		if err := rows.Scan(&foundUsername, &foundEmail); err != nil {
			utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
			return err
		}

		customErr := schemas.EmailTaken
		if foundUsername == username {
			customErr = schemas.UsernameTaken
		}

		err = errors.New("username or email taken")
		utils.WriteAndLogError(c, customErr, http.StatusConflict, err)
		return err
	}

	return nil
}

// createAndSendConfirmation inserts a new confirmation row and mails the link
// to the user. Both happen inside the caller's transaction, so a failed mail
// leaves no dangling confirmation behind.
func createAndSendConfirmation(ctx context.Context, c *gin.Context, handler *UserHandler, tx pgx.Tx,
	email, username, userId string) (*schemas.Confirmation, error) {
	confirmationId := uuid.New().String()
	createdAt := time.Now()
	expiresAt := createdAt.Add(confirmationTTL)

	queryString := "INSERT INTO imago_schema.confirmations (confirmation_id, user_id, created_at, expires_at, confirmed) VALUES ($1, $2, $3, $4, FALSE)"
	if _, err := tx.Exec(ctx, queryString, confirmationId, userId, createdAt, expiresAt); err != nil {
		utils.WriteAndLogError(c, schemas.DatabaseError, http.StatusInternalServerError, err)
		return nil, err
	}

	if err := handler.MailManager.SendConfirmationMail(email, username, confirmationId); err != nil {
		utils.WriteAndLogError(c, schemas.EmailNotSent(err), http.StatusInternalServerError, err)
		return nil, err
	}

	return &schemas.Confirmation{
		ID:        confirmationId,
		UserID:    userId,
		CreatedAt: &createdAt,
		ExpiresAt: &expiresAt,
		Confirmed: false,
	}, nil
}

// generateTokenPair generates a fresh access token and a refresh token for the given user.
func generateTokenPair(handler *UserHandler, userId, username string) (*schemas.TokenPairDTO, error) {
	token, err := handler.JWTManager.GenerateAccessToken(userId, username, true)
	if err != nil {
		return nil, err
	}

	refreshToken, err := handler.JWTManager.GenerateRefreshToken(userId, username)
	if err != nil {
		return nil, err
	}

	return &schemas.TokenPairDTO{
		Token:        token,
		RefreshToken: refreshToken,
	}, nil
}

// payloadFromContext returns the sanitized request payload stored by the
// validation middleware, or responds with an internal error if it is missing.
func payloadFromContext[T any](c *gin.Context) *T {
	value, ok := c.Get(utils.SanitizedPayloadKey.String())
	if !ok {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, errors.New("payload missing from context"))
		return nil
	}

	payload, ok := value.(*T)
	if !ok {
		utils.WriteAndLogError(c, schemas.InternalServerError, http.StatusInternalServerError, errors.New("payload has unexpected type"))
		return nil
	}

	return payload
}

// claimsFromContext returns the JWT claims stored by the auth middleware.
func claimsFromContext(c *gin.Context) jwt.MapClaims {
	value, ok := c.Get(utils.ClaimsKey.String())
	if !ok {
		utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, errUnauthorized)
		return nil
	}

	claims, ok := value.(jwt.MapClaims)
	if !ok {
		utils.WriteAndLogError(c, schemas.Unauthorized, http.StatusUnauthorized, errUnauthorized)
		return nil
	}

	return claims
}

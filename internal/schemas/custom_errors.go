package schemas

import "fmt"

// CustomError is the stable error envelope returned by every endpoint.
// Code is machine-readable, Message is a stable human-readable template.
type CustomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	BadRequest             = &CustomError{"ERR-001", "The request body is invalid. Please check the request body and try again."}
	UsernameTaken          = &CustomError{"ERR-002", "The username is already taken. Please try another username."}
	EmailTaken             = &CustomError{"ERR-003", "The email is already taken. Please try another email."}
	UserNotFound           = &CustomError{"ERR-004", "The user was not found. Please check the username and try again."}
	InvalidCredentials     = &CustomError{"ERR-005", "The credentials are invalid. Please check your username and password."}
	InvalidToken           = &CustomError{"ERR-006", "The token is invalid or expired. Please log in to your account again."}
	FreshTokenRequired     = &CustomError{"ERR-007", "A fresh token is required for this action. Please log in again."}
	ConfirmationNotFound   = &CustomError{"ERR-008", "The confirmation was not found. Please request a new confirmation link."}
	ConfirmationExpired    = &CustomError{"ERR-009", "The confirmation link has expired. Please request a new confirmation link."}
	UserAlreadyConfirmed   = &CustomError{"ERR-010", "The account is already confirmed. You can log in."}
	IllegalFileName        = &CustomError{"ERR-011", "Illegal file name requested. Please use a plain file name without path components."}
	IllegalFileExtension   = &CustomError{"ERR-012", "The file extension is not allowed. Please upload an image in a supported format."}
	ImageNotFound          = &CustomError{"ERR-013", "The image was not found. Please check the file name and try again."}
	Unauthorized           = &CustomError{"ERR-014", "The request is unauthorized. Please login to your account."}
	AvatarNotFound         = &CustomError{"ERR-015", "The avatar was not found."}
	DatabaseError          = &CustomError{"ERR-017", "A database error occurred. Please try again later."}
	InternalServerError    = &CustomError{"ERR-018", "An internal server error occurred. Please try again later."}
	FileOperationError     = &CustomError{"ERR-019", "The file operation failed. Please try again later."}
	EmailUnreachable       = &CustomError{"ERR-020", "The email address appears to be unreachable. Please check the address and try again."}
)

// EmailNotSent builds the mail-delivery error. The message carries the
// delivery failure's own reason, so the caller sees why the mail bounced.
func EmailNotSent(err error) *CustomError {
	return &CustomError{
		Code:    "ERR-016",
		Message: fmt.Sprintf("The confirmation email could not be sent: %v.", err),
	}
}

// UserNotConfirmed builds the not-confirmed login error. The message names
// the registered email, so the caller knows where the confirmation link went.
func UserNotConfirmed(email string) *CustomError {
	return &CustomError{
		Code:    "ERR-021",
		Message: fmt.Sprintf("You have not confirmed your registration, please check your email <%s>.", email),
	}
}

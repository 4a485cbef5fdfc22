package utils

const (
	// UserIdKey is the key for user ID used in routing parameters.
	UserIdKey = "userId"

	// UsernameKey is the key for username used in routing parameters.
	UsernameKey = "username"

	// ConfirmationIdKey is the key for confirmation ID used in routing parameters.
	ConfirmationIdKey = "confirmationId"

	// FilenameKey is the key for image file names used in routing parameters.
	FilenameKey = "filename"
)

package schemas

// ErrorDTO is a struct that represents an error response
// Error is the custom error, see CustomError
type ErrorDTO struct {
	Error CustomError `json:"error"`
}

// UserDTO is a struct that represents a user response.
// The confirmation field carries the most recent confirmation of the user,
// computed before serialization; the password hash is never part of it.
type UserDTO struct {
	UserId       string           `json:"userId"`
	Username     string           `json:"username"`
	Email        string           `json:"email"`
	Confirmation *ConfirmationDTO `json:"confirmation,omitempty"`
}

// ConfirmationDTO is a struct that represents the outward view of a confirmation
type ConfirmationDTO struct {
	ConfirmationId string `json:"confirmationId"`
	ExpiresAt      string `json:"expiresAt"`
	Confirmed      bool   `json:"confirmed"`
}

// TokenPairDTO is a struct that represents a token response
// Token is the main JWT token used for auth
// RefreshToken is the refresh token used to get a new token
type TokenPairDTO struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// TokenDTO is a struct that represents a single-token response,
// returned when an access token is minted from a refresh token
type TokenDTO struct {
	Token string `json:"token"`
}

// ImageDTO is a struct that represents an image upload response
// Filename is the name the file was stored under, after collision handling
type ImageDTO struct {
	Filename string `json:"filename"`
}

// MetadataDTO is a struct that represents the version metadata of the API
type MetadataDTO struct {
	ApiVersion string `json:"apiVersion"`
	ApiName    string `json:"apiName"`
}

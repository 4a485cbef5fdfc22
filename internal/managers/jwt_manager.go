package managers

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"server-imago/internal/schemas"
	"server-imago/internal/utils"
)

const (
	// AccessTokenTTL is the lifetime of access tokens. Revocation entries use
	// the same TTL, so a revoked jti stays blacklisted for as long as the
	// token could still validate.
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the lifetime of refresh tokens.
	RefreshTokenTTL = 30 * 24 * time.Hour

	issuer = "imago.app"
)

var errTokenRevoked = errors.New("token revoked")

// JWTMgr handles token issuance, validation and the route guards built on them.
type JWTMgr interface {
	GenerateAccessToken(userId, username string, fresh bool) (string, error)
	GenerateRefreshToken(userId, username string) (string, error)
	ValidateJWT(ctx context.Context, tokenString string) (jwt.MapClaims, error)
	JWTMiddleware() gin.HandlerFunc
	FreshJWTMiddleware() gin.HandlerFunc
}

// JWTManager signs tokens with an ed25519 key pair and checks incoming token
// identifiers against the injected revocation set.
type JWTManager struct {
	privateKey       ed25519.PrivateKey
	publicKey        ed25519.PublicKey
	blacklist        BlacklistMgr
	blacklistEnabled bool
}

// NewJWTManager creates a JWTManager from an existing key pair.
func NewJWTManager(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, blacklist BlacklistMgr, blacklistEnabled bool) JWTMgr {
	return &JWTManager{
		privateKey:       privateKey,
		publicKey:        publicKey,
		blacklist:        blacklist,
		blacklistEnabled: blacklistEnabled,
	}
}

// NewJWTManagerFromFile loads the signing key pair from the given path,
// generating and persisting a fresh pair on first start.
func NewJWTManagerFromFile(path string, blacklist BlacklistMgr, blacklistEnabled bool) (JWTMgr, error) {
	privateKey, publicKey, err := loadKeyPair(path)
	if err != nil {
		privateKey, publicKey, err = generateKeyPair(path)
		if err != nil {
			return nil, err
		}
	}

	return NewJWTManager(privateKey, publicKey, blacklist, blacklistEnabled), nil
}

// GenerateAccessToken mints an access token bound to the user identity.
// The fresh flag is set only for tokens issued directly by a password login.
func (jm *JWTManager) GenerateAccessToken(userId, username string, fresh bool) (string, error) {
	return jm.generateJWT(userId, username, AccessTokenTTL, fresh, false)
}

// GenerateRefreshToken mints a refresh token bound to the user identity.
func (jm *JWTManager) GenerateRefreshToken(userId, username string) (string, error) {
	return jm.generateJWT(userId, username, RefreshTokenTTL, false, true)
}

func (jm *JWTManager) generateJWT(userId, username string, ttl time.Duration, fresh, refresh bool) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      issuer,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"sub":      userId,
		"username": username,
		"jti":      uuid.New().String(),
		"fresh":    fresh,
		"refresh":  refresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(jm.privateKey)
}

// ValidateJWT validates signature and expiry of the given token and checks its
// identifier against the revocation set. It returns the claims if all checks pass.
func (jm *JWTManager) ValidateJWT(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("invalid signing method")
		}
		return jm.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if jm.blacklistEnabled {
		jti, _ := claims["jti"].(string)
		revoked, err := jm.blacklist.Contains(ctx, jti)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, errTokenRevoked
		}
	}

	return claims, nil
}

// JWTMiddleware guards a route group with a valid, non-revoked access token.
func (jm *JWTManager) JWTMiddleware() gin.HandlerFunc {
	return jm.authMiddleware(false)
}

// FreshJWTMiddleware guards a route group with a fresh access token, i.e. one
// obtained directly from a password login rather than from a refresh.
func (jm *JWTManager) FreshJWTMiddleware() gin.HandlerFunc {
	return jm.authMiddleware(true)
}

func (jm *JWTManager) authMiddleware(requireFresh bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, &schemas.ErrorDTO{Error: *schemas.Unauthorized})
			return
		}

		claims, err := jm.ValidateJWT(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, &schemas.ErrorDTO{Error: *schemas.Unauthorized})
			return
		}

		if isRefresh, _ := claims["refresh"].(bool); isRefresh {
			// Refresh tokens are only good for minting new access tokens.
			c.AbortWithStatusJSON(http.StatusUnauthorized, &schemas.ErrorDTO{Error: *schemas.Unauthorized})
			return
		}

		if requireFresh {
			if fresh, _ := claims["fresh"].(bool); !fresh {
				c.AbortWithStatusJSON(http.StatusForbidden, &schemas.ErrorDTO{Error: *schemas.FreshTokenRequired})
				return
			}
		}

		c.Set(utils.ClaimsKey.String(), claims)
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// generateKeyPair generates a new key pair and saves it to a file.
func generateKeyPair(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	if err = saveKeyPair(privateKey, publicKey, path); err != nil {
		return nil, nil, err
	}

	return privateKey, publicKey, nil
}

// saveKeyPair saves the key pair to the specified file.
func saveKeyPair(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, path string) error {
	keyPairBytes := append(privateKey, publicKey...)
	return os.WriteFile(path, keyPairBytes, 0600)
}

// loadKeyPair loads the key pair from the specified file.
func loadKeyPair(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	keyPairBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	// The key pair is the concatenation of private and public keys
	if len(keyPairBytes) != ed25519.PrivateKeySize+ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("invalid key pair format")
	}

	return keyPairBytes[:ed25519.PrivateKeySize], keyPairBytes[ed25519.PrivateKeySize:], nil
}

package accounts

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService issues, validates, refreshes, and revokes bearer tokens.
type TokenService interface {
	Generate(identity Identity) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	Refresh(tokenString string) (string, error)
	Revoke(tokenString string) error
	TTL() time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	refreshGrace    int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewTokenService creates a new TokenService instance. tokenExpiration and
// refreshGrace are minutes; a zero grace window means tokens must still be
// live to be refreshed.
func NewTokenService(signingKey []byte, tokenExpiration, refreshGrace int, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		refreshGrace:    refreshGrace,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
		revoked:         map[string]time.Time{},
	}
}

// TTL is the lifetime of newly issued tokens.
func (ts *TokenServiceImpl) TTL() time.Duration {
	return time.Duration(ts.tokenExpiration) * time.Minute
}

// Generate creates a JWT token bound to the given identity
func (ts *TokenServiceImpl) Generate(identity Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity must not be nil", errors.CategoryInternal)
	}

	return ts.SignClaims(ts.newClaims(identity.ID()))
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Revoked tokens fail even when otherwise valid.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.parse(tokenString, false)
	if err != nil {
		return nil, err
	}

	if ts.isRevoked(claims.TokenID()) {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Refresh exchanges a token for a freshly issued one bound to the same
// subject. The old token is revoked so it cannot be replayed. Expired tokens
// are accepted within the configured grace window.
func (ts *TokenServiceImpl) Refresh(tokenString string) (string, error) {
	claims, err := ts.parse(tokenString, true)
	if err != nil {
		return "", err
	}

	if ts.isRevoked(claims.TokenID()) {
		return "", ErrTokenRevoked
	}

	if exp := claims.Expires(); !exp.IsZero() {
		grace := time.Duration(ts.refreshGrace) * time.Minute
		if time.Now().After(exp.Add(grace)) {
			return "", ErrTokenExpired
		}
	}

	ts.revoke(claims.TokenID(), claims.Expires())

	return ts.SignClaims(ts.newClaims(claims.UserID()))
}

// Revoke invalidates the token until its natural expiration.
func (ts *TokenServiceImpl) Revoke(tokenString string) error {
	claims, err := ts.parse(tokenString, true)
	if err != nil {
		return err
	}

	ts.revoke(claims.TokenID(), claims.Expires())
	return nil
}

func (ts *TokenServiceImpl) newClaims(subject string) *JWTClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.TTL())),
		},
		UID: subject,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

// parse verifies signature and registered claims. With allowExpired the
// expiration check is skipped, callers enforce their own window.
func (ts *TokenServiceImpl) parse(tokenString string, allowExpired bool) (*JWTClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 3)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}
	if allowExpired {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService parse encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		ts.logger.Error("TokenService parse could not decode claims")
		return nil, ErrUnableToDecodeSession
	}

	return claims, nil
}

func (ts *TokenServiceImpl) isRevoked(tokenID string) bool {
	if tokenID == "" {
		return false
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	_, ok := ts.revoked[tokenID]
	return ok
}

func (ts *TokenServiceImpl) revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}

	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(ts.TTL())
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for id, exp := range ts.revoked {
		if exp.Before(now) {
			delete(ts.revoked, id)
		}
	}

	ts.revoked[tokenID] = expiresAt.Add(time.Duration(ts.refreshGrace) * time.Minute)
}

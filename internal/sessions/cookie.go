package sessions

import (
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/findtune/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

const cookieIssuer = "findtune"

// CookieCodec signs session ids into cookie values and verifies them on the way back.
//
// Values are HS256 JWTs whose jti claim is the session id.
type CookieCodec struct {
	name   string
	secret []byte
	maxAge time.Duration
	secure bool
	clock  shared.Clock
}

// NewCookieCodec creates a codec for cookies called name.
func NewCookieCodec(name, secret string, maxAge time.Duration, secure bool, clock shared.Clock) (*CookieCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: session secret is empty", shared.ErrInvalidConfig)
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &CookieCodec{name: name, secret: []byte(secret), maxAge: maxAge, secure: secure, clock: clock}, nil
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string { return c.name }

// Encode returns a signed value for session id.
func (c *CookieCodec) Encode(id string) (string, error) {
	now := c.clock.Now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies value and returns the session id it carries.
func (c *CookieCodec) Decode(value string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: invalid session cookie: %v", shared.ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: session cookie has no id", shared.ErrUnauthorized)
	}
	return claims.ID, nil
}

// Read extracts the session id from r's cookie.
func (c *CookieCodec) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", fmt.Errorf("%w: no session cookie", shared.ErrUnauthorized)
	}
	return c.Decode(cookie.Value)
}

// Write sets the session cookie for id on w.
func (c *CookieCodec) Write(w http.ResponseWriter, id string) error {
	value, err := c.Encode(id)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie on w.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

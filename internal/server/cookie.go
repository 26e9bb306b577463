package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/internship-compass/internal/config"
	"github.com/jonathan/internship-compass/internal/i18n"
)

// LanguageCookieName is the cookie holding the visitor's last selected language.
const LanguageCookieName = "compass_lang"

// LanguageClaims is the signed payload of the language cookie.
type LanguageClaims struct {
	Language string `json:"lang"`
	jwt.RegisteredClaims
}

// LanguageCookies signs and verifies the language cookie.
type LanguageCookies struct {
	config *config.CookieConfig
	secure bool
	now    func() time.Time
}

// NewLanguageCookies creates a cookie service with the given configuration.
func NewLanguageCookies(cfg *config.CookieConfig, secure bool) *LanguageCookies {
	return &LanguageCookies{config: cfg, secure: secure, now: time.Now}
}

// Sign returns a signed token for code.
func (c *LanguageCookies) Sign(code string) (string, error) {
	now := c.now()
	claims := &LanguageClaims{
		Language: code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge())),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign language cookie: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the supported language code it carries.
func (c *LanguageCookies) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("token string is empty")
	}

	claims := &LanguageClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(c.config.Secret), nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("language cookie expired: %w", err)
		}
		return "", fmt.Errorf("failed to parse language cookie: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("language cookie is not valid")
	}

	code, ok := i18n.Normalize(claims.Language)
	if !ok {
		return "", fmt.Errorf("language cookie carries unsupported language %q", claims.Language)
	}
	return code, nil
}

// Read returns the language stored in r, or "" when there is no valid cookie.
func (c *LanguageCookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(LanguageCookieName)
	if err != nil {
		return ""
	}
	code, err := c.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return code
}

// Write stores code in the response.
func (c *LanguageCookies) Write(w http.ResponseWriter, code string) error {
	signed, err := c.Sign(code)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LanguageCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(c.maxAge().Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *LanguageCookies) maxAge() time.Duration {
	return time.Duration(c.config.MaxAgeDays) * 24 * time.Hour
}

package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// FromRequest extracts the user from forwarded headers.
func FromRequest(r *http.Request) (User, error) {
	u := User{
		ID:       strings.TrimSpace(r.Header.Get(HeaderUserID)),
		TimeZone: strings.TrimSpace(r.Header.Get(HeaderTimeZone)),
	}
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			u.Credential = strings.TrimSpace(token)
		}
	}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

// Middleware rejects requests without a valid user and stores the user in
// the request context for handlers.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := FromRequest(c.Request())
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, ErrInvalidUser) {
					status = http.StatusBadRequest
				}
				return c.JSON(status, map[string]string{"error": err.Error()})
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithUser(req.Context(), u)))
			return next(c)
		}
	}
}

package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/recommend"
	"github.com/jonathan/internship-compass/internal/session"
	"github.com/jonathan/internship-compass/internal/types"
)

// ErrBadRequest is returned for request bodies that cannot be decoded.
var ErrBadRequest = errors.New("invalid request body")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *types.ValidationError
	var failure *session.TranslationFailure

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, session.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, recommend.ErrNoMatches):
		// an empty result is a message, not a failure
		return http.StatusOK
	case errors.Is(err, recommend.ErrRecommendationFailed),
		errors.Is(err, completion.ErrMalformedResponse),
		errors.As(err, &failure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package handlers

import (
	"net/http"

	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
)

// respondWithError writes the {"error": {...}} envelope used by the
// operational routes (/health, /version).
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// respondWithMessage writes the flat {"error": ...} body of the proxy routes.
func respondWithMessage(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithMessage(w, r, err)
}

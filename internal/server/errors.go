package server

import (
	"net/http"

	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
)

// HandleError writes err as an error envelope. Operational routes use it;
// the weather routes answer with the flat {"error": ...} body instead.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

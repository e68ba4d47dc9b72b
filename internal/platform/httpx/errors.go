package httpx

import (
	"errors"
	"net/http"

	"github.com/palisade-app/palisade/internal/shared"
)

// RespondError maps the domain error taxonomy onto HTTP statuses. Store
// failures are deliberately opaque: persistence internals never reach clients.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, shared.ErrForbidden):
		Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrAlreadyAssigned), errors.Is(err, shared.ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, shared.ErrStoreUnavailable):
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

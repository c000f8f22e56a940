package designs

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"tshirt-designer/core"
	"tshirt-designer/persist"
	"tshirt-designer/placement"
)

// statusFor maps an engine error to an HTTP status. Unclassified errors get
// fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, persist.ErrSaveInProgress),
		errors.Is(err, persist.ErrDuplicateDeclined),
		errors.Is(err, placement.ErrNoDesign):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrInvalidImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrPersistenceFailure):
		return http.StatusInternalServerError
	}
	return fallback
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

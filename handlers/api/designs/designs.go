// Package designs exposes the editing session and the saved design records
// of the authenticated owner over HTTP.
package designs

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
	"tshirt-designer/designer"
	"tshirt-designer/middleware"
)

// RecordResponse is a saved design as listed to its owner.
type RecordResponse struct {
	ID         string         `json:"id"`
	Hash       string         `json:"hash"`
	DesignData core.DesignSet `json:"designData"`
	Preview    string         `json:"preview,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func toResponse(rec *core.Record) RecordResponse {
	return RecordResponse{
		ID:         rec.ID,
		Hash:       rec.Hash,
		DesignData: rec.Design,
		Preview:    rec.Design.Preview(),
		CreatedAt:  rec.CreatedAt,
	}
}

// session resolves the session of the authenticated owner.
func session(sessions *designer.Sessions, w http.ResponseWriter, r *http.Request) (*designer.Session, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		renderError(w, r, http.StatusUnauthorized, "User claims not found")
		return nil, false
	}
	return sessions.Get(claims.Subject), true
}

func HandleListDesigns(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}

		recs, err := s.List(r.Context())
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID()}).Error("Failed to list designs")
			renderError(w, r, statusFor(err, http.StatusInternalServerError), "Failed to fetch designs")
			return
		}

		out := make([]RecordResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, toResponse(rec))
		}
		render.JSON(w, r, out)
	}
}

func HandleGetDesign(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			renderError(w, r, http.StatusBadRequest, "Design id is required")
			return
		}

		rec, err := s.Record(r.Context(), id)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID(), "record_id": id}).Warn("Failed to get design")
			renderError(w, r, statusFor(err, http.StatusInternalServerError), "Design not found")
			return
		}
		render.JSON(w, r, toResponse(rec))
	}
}

// HandleLoadDesign restores a saved record into the owner's session.
func HandleLoadDesign(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		if err := s.LoadRecord(r.Context(), id); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID(), "record_id": id}).Warn("Failed to load design")
			renderError(w, r, statusFor(err, http.StatusInternalServerError), "Failed to load design")
			return
		}
		render.JSON(w, r, s.State())
	}
}

func HandleDeleteDesign(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		if err := s.Delete(r.Context(), id); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID(), "record_id": id}).Error("Failed to delete design")
			renderError(w, r, statusFor(err, http.StatusInternalServerError), "Failed to delete design")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandlePalette lists the garment colours.
func HandlePalette() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, core.Palette)
	}
}

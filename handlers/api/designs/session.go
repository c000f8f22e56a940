package designs

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
	"tshirt-designer/designer"
	"tshirt-designer/ingest"
	"tshirt-designer/persist"
	"tshirt-designer/placement"
)

// MaxUploadBytes caps the size of an uploaded image file.
const MaxUploadBytes = 10 << 20

type (
	ColorRequest struct {
		Color string `json:"color"`
	}

	ViewRequest struct {
		View core.ViewID `json:"view"`
	}

	DragRequest struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}

	ResizeRequest struct {
		Corner string  `json:"corner"`
		DX     float64 `json:"dx"`
		DY     float64 `json:"dy"`
	}

	SaveResponse struct {
		RecordID string         `json:"recordId"`
		Hash     string         `json:"hash"`
		Uploads  int            `json:"uploads"`
		State    designer.State `json:"state"`
	}
)

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func viewParam(w http.ResponseWriter, r *http.Request) (core.ViewID, bool) {
	v, err := core.ParseViewID(chi.URLParam(r, "view"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return v, true
}

func HandleGetSession(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		render.JSON(w, r, s.State())
	}
}

func HandleSetColor(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		var req ColorRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.SetColor(req.Color); err != nil {
			renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		render.JSON(w, r, s.State())
	}
}

// HandleUploadImage accepts a multipart form with a "file" field or a raw
// image body.
func HandleUploadImage(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		view, ok := viewParam(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
		f, err := readFile(r)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID()}).Warn("Failed to read upload")
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			renderError(w, r, status, "Failed to read uploaded file")
			return
		}

		if _, err := s.Upload(r.Context(), view, f); err != nil {
			renderError(w, r, statusFor(err, http.StatusBadRequest), err.Error())
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, s.State())
	}
}

func readFile(r *http.Request) (ingest.File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return ingest.File{}, err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return ingest.File{}, err
		}
		return ingest.File{Name: header.Filename, MIMEType: header.Header.Get("Content-Type"), Data: data}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return ingest.File{}, err
	}
	return ingest.File{Name: r.Header.Get("X-File-Name"), MIMEType: mediaType, Data: data}, nil
}

func HandleRemoveImage(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		view, ok := viewParam(w, r)
		if !ok {
			return
		}
		s.Remove(view)
		render.JSON(w, r, s.State())
	}
}

func HandleSwitchView(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		var req ViewRequest
		if !decode(w, r, &req) {
			return
		}
		if _, _, err := s.Switch(req.View); err != nil {
			renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		render.JSON(w, r, s.State())
	}
}

func HandleDrag(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		var req DragRequest
		if !decode(w, r, &req) {
			return
		}
		p, err := s.Drag(req.DX, req.DY)
		if err != nil {
			renderError(w, r, statusFor(err, http.StatusBadRequest), err.Error())
			return
		}
		render.JSON(w, r, p)
	}
}

func HandleResize(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		var req ResizeRequest
		if !decode(w, r, &req) {
			return
		}
		corner, err := placement.ParseCorner(strings.ToLower(req.Corner))
		if err != nil {
			renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := s.Resize(corner, req.DX, req.DY)
		if err != nil {
			renderError(w, r, statusFor(err, http.StatusBadRequest), err.Error())
			return
		}
		render.JSON(w, r, p)
	}
}

// HandleSave saves the session. The optional duplicate query parameter
// ("save" or "abort") overrides the configured duplicate policy.
func HandleSave(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}

		var opts []persist.SaveOption
		if d := r.URL.Query().Get("duplicate"); d != "" {
			policy, err := persist.ParseDuplicatePolicy(d)
			if err != nil {
				renderError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			opts = append(opts, persist.UsePolicy(policy))
		}

		res, err := s.Save(r.Context(), opts...)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "owner_id": s.OwnerID()}).Warn("Save failed")
			renderError(w, r, statusFor(err, http.StatusInternalServerError), err.Error())
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, SaveResponse{RecordID: res.RecordID, Hash: res.Hash, Uploads: res.Uploads, State: s.State()})
	}
}

// HandleLoadSaved restores the locally saved design.
func HandleLoadSaved(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		if !s.Load() {
			renderError(w, r, http.StatusNotFound, "No saved design")
			return
		}
		render.JSON(w, r, s.State())
	}
}

func HandleClearNotice(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		s.Notices().Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleLocalImage serves the bytes behind a local reference of the session.
func HandleLocalImage(sessions *designer.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(sessions, w, r)
		if !ok {
			return
		}
		ref := chi.URLParam(r, "ref")
		if !strings.HasPrefix(ref, core.LocalRefScheme) {
			ref = core.LocalRefScheme + ref
		}

		data, mimeType, ok := s.ResolveLocal(ref)
		if !ok {
			renderError(w, r, http.StatusNotFound, "Local image not found")
			return
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	}
}

// Routes mounts the design API on r.
func Routes(r chi.Router, sessions *designer.Sessions) {
	r.Get("/palette", HandlePalette())

	r.Route("/designs", func(r chi.Router) {
		r.Get("/", HandleListDesigns(sessions))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", HandleGetDesign(sessions))
			r.Delete("/", HandleDeleteDesign(sessions))
			r.Post("/load", HandleLoadDesign(sessions))
		})
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", HandleGetSession(sessions))
		r.Put("/color", HandleSetColor(sessions))
		r.Put("/active", HandleSwitchView(sessions))
		r.Post("/drag", HandleDrag(sessions))
		r.Post("/resize", HandleResize(sessions))
		r.Post("/save", HandleSave(sessions))
		r.Post("/load", HandleLoadSaved(sessions))
		r.Delete("/notice", HandleClearNotice(sessions))
		r.Get("/local/{ref}", HandleLocalImage(sessions))
		r.Route("/views/{view}/image", func(r chi.Router) {
			r.Put("/", HandleUploadImage(sessions))
			r.Delete("/", HandleRemoveImage(sessions))
		})
	})
}

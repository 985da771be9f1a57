package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/apperr"
)

var errNotFoundRoute = apperr.New(apperr.KindNotFound, "route not found")

type addVideoRequest struct {
	TedURL string `json:"tedUrl" validate:"required,url,max=2048"`
}

type favoriteRequest struct {
	VideoID    uint  `json:"videoId" validate:"required"`
	IsFavorite *bool `json:"isFavorite" validate:"required"`
}

type removeRequest struct {
	VideoID uint `json:"videoId" validate:"required"`
}

// handleListVideos serves GET /api/my-videos?page=N
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, apperr.Wrap(apperr.KindInvalidInput, err, "page must be a number"))
			return
		}
		page = n
	}

	result, err := s.catalog.Assemble(r.Context(), user, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	// Rows with missing talks are left out; the page is served with a warning
	if perr := result.Err(); perr != nil {
		log.Warn().Err(perr).Str("requestId", RequestID(r.Context())).Str("userId", user.ID).Msg("Catalog page is incomplete")
		respondWithWarnings(w, r, http.StatusOK, result, perr)
		return
	}

	respond(w, r, http.StatusOK, result)
}

// handleAddVideo serves POST /api/my-videos
func (s *Server) handleAddVideo(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req addVideoRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.submitter.Submit(r.Context(), user, req.TedURL)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if summary.Created {
		status = http.StatusCreated
	}
	respond(w, r, status, summary)
}

// handleSetFavorite serves PUT /api/my-videos/favorite
func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req favoriteRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.catalog.SetFavorite(r.Context(), user.ID, req.VideoID, *req.IsFavorite); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"videoId": req.VideoID, "isFavorite": *req.IsFavorite})
}

// handleRemoveVideo serves DELETE /api/my-videos
func (s *Server) handleRemoveVideo(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req removeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.catalog.Remove(r.Context(), user.ID, req.VideoID); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"videoId": req.VideoID})
}

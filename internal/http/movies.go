package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movies-api/internal/domain"
	"github.com/Clark-Hu/movies-api/internal/repository"
	"github.com/Clark-Hu/movies-api/internal/store"
)

const (
	maxRequestBody = 1 << 20 // 1 MiB
	dateLayout     = "2006-01-02"
	moviesPath     = "/movies"
)

var (
	errEmptyBatch   = errors.New("the movies list cannot be empty")
	errTrailingData = errors.New("request body must contain a single JSON value")
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// movieRequest is the wire form of a movie in request bodies. ID is only
// meaningful for updates; create ignores it.
type movieRequest struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Genre       string  `json:"genre"`
	ReleaseDate *string `json:"releaseDate"`
}

type movieResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Genre       string  `json:"genre"`
	ReleaseDate *string `json:"releaseDate,omitempty"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r, http.StatusNotFound)
	if !ok {
		return
	}
	defer sess.Close()

	movies, err := sess.Movies.List(r.Context())
	if err != nil {
		s.logger.Printf("list movies error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list movies")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponses(movies))
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	sess, ok := s.openSession(w, r, http.StatusNotFound)
	if !ok {
		return
	}
	defer sess.Close()

	movie, err := sess.Movies.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondNotFound(w)
			return
		}
		s.logger.Printf("get movie %d error: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch movie")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleCreateMovies(w http.ResponseWriter, r *http.Request) {
	var req []movieRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", errEmptyBatch.Error())
			return
		}
		s.respondDecodeError(w, err)
		return
	}

	params, err := buildCreateParams(req, s.cfg.MaxBatchSize)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	sess, ok := s.openSession(w, r, http.StatusInternalServerError)
	if !ok {
		return
	}
	defer sess.Close()

	created, err := sess.Movies.CreateBatch(r.Context(), params)
	if err != nil {
		s.logger.Printf("create movies error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create movies")
		return
	}

	w.Header().Set("Location", moviesPath)
	s.respondJSON(w, http.StatusCreated, toMovieResponses(created))
}

// buildCreateParams turns a batch into insert parameters. A nil or empty
// batch is rejected; maxSize <= 0 disables the size ceiling.
func buildCreateParams(req []movieRequest, maxSize int) ([]repository.MovieCreateParams, error) {
	if len(req) == 0 {
		return nil, errEmptyBatch
	}
	if maxSize > 0 && len(req) > maxSize {
		return nil, fmt.Errorf("batch of %d movies exceeds the limit of %d", len(req), maxSize)
	}
	params := make([]repository.MovieCreateParams, 0, len(req))
	for i, m := range req {
		releaseDate, err := parseReleaseDate(m.ReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("movie %d: %w", i, err)
		}
		params = append(params, repository.MovieCreateParams{
			Title:       m.Title,
			Genre:       m.Genre,
			ReleaseDate: releaseDate,
		})
	}
	return params, nil
}

func (s *Server) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req movieRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.ID != id {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "id in path does not match id in body")
		return
	}
	releaseDate, err := parseReleaseDate(req.ReleaseDate)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	sess, ok := s.openSession(w, r, http.StatusInternalServerError)
	if !ok {
		return
	}
	defer sess.Close()

	result, err := sess.Movies.Replace(r.Context(), domain.Movie{
		ID:          id,
		Title:       req.Title,
		Genre:       req.Genre,
		ReleaseDate: releaseDate,
	})
	s.respondUpdateResult(w, id, result, err)
}

// respondUpdateResult maps a replace outcome onto the response. Conflicts and
// failures both surface as 500.
func (s *Server) respondUpdateResult(w http.ResponseWriter, id int64, result repository.UpdateResult, err error) {
	switch result {
	case repository.UpdateApplied:
		w.WriteHeader(http.StatusNoContent)
	case repository.UpdateNotFound:
		s.respondNotFound(w)
	default:
		s.logger.Printf("update movie %d %s: %v", id, result, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update movie")
	}
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	sess, ok := s.openSession(w, r, http.StatusNotFound)
	if !ok {
		return
	}
	defer sess.Close()

	if err := sess.Movies.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondNotFound(w)
			return
		}
		s.logger.Printf("delete movie %d error: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete movie")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// openSession starts the request's persistence context. When the store is
// unavailable it answers with unavailableStatus and reports false.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request, unavailableStatus int) (*repository.Session, bool) {
	sess, err := repository.Open(r.Context(), s.store)
	if err == nil {
		return sess, true
	}
	if errors.Is(err, store.ErrUnavailable) && unavailableStatus == http.StatusNotFound {
		s.respondNotFound(w)
		return nil, false
	}
	s.logger.Printf("open session error: %v", err)
	s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Store unavailable")
	return nil, false
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(s.logger, w, status, payload)
}

func writeJSON(logger *log.Logger, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondNotFound(w http.ResponseWriter) {
	s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Request body too large")
	case errors.Is(err, errTrailingData):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", errTrailingData.Error())
	default:
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Unable to parse request body")
	}
}

func toMovieResponse(movie domain.Movie) movieResponse {
	resp := movieResponse{
		ID:    movie.ID,
		Title: movie.Title,
		Genre: movie.Genre,
	}
	if movie.ReleaseDate != nil {
		date := movie.ReleaseDate.Format(dateLayout)
		resp.ReleaseDate = &date
	}
	return resp
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	items := make([]movieResponse, 0, len(movies))
	for _, movie := range movies {
		items = append(items, toMovieResponse(movie))
	}
	return items
}

func parseReleaseDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	val := strings.TrimSpace(*raw)
	if val == "" {
		return nil, nil
	}
	date, err := time.Parse(dateLayout, val)
	if err != nil {
		return nil, fmt.Errorf("releaseDate must follow YYYY-MM-DD format")
	}
	return &date, nil
}

func decodeIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return 0, fmt.Errorf("missing id parameter")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id parameter")
	}
	return id, nil
}

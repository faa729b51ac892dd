package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"carsensor-mirror/models"
	"carsensor-mirror/services"
	"carsensor-mirror/storage"
	"carsensor-mirror/telemetry"
	"carsensor-mirror/utils"
	"carsensor-mirror/worker"
)

// Trigger starts a background run and reports whether it was accepted.
type Trigger interface {
	Start(ctx context.Context, kind models.RunKind) error
}

// RunLister reads the run log.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]*models.ScrapingRun, error)
	GetRun(ctx context.Context, id string) (*models.ScrapingRun, error)
}

// Server wires HTTP handlers for the read API and the manual trigger.
type Server struct {
	ctx     context.Context
	catalog *services.Catalog
	trigger Trigger
	runs    RunLister
	logger  *utils.Logger
}

// New constructs the API server. Manual runs inherit ctx rather than the
// request context so they outlive the POST that started them.
func New(ctx context.Context, catalog *services.Catalog, trigger Trigger, runs RunLister, logger *utils.Logger) *Server {
	return &Server{ctx: ctx, catalog: catalog, trigger: trigger, runs: runs, logger: logger}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/cars", s.handleList)
		r.Get("/cars/stats", s.handleStats)
		r.Get("/cars/{id}", s.handleGet)
		r.Post("/scrape", s.handleScrape)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

type badParam string

func (p badParam) Error() string { return "invalid value for " + string(p) }

type queryReader struct {
	r   *http.Request
	err error
}

func (q *queryReader) str(key string) string {
	return q.r.URL.Query().Get(key)
}

// first returns the value of the first key present, for parameters with
// more than one accepted spelling.
func (q *queryReader) first(keys ...string) string {
	for _, k := range keys {
		if v := q.str(k); v != "" {
			return v
		}
	}
	return ""
}

func (q *queryReader) int(key string) int {
	v := q.str(key)
	if v == "" || q.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.err = badParam(key)
	}
	return n
}

func (q *queryReader) int64(key string) int64 {
	v := q.str(key)
	if v == "" || q.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		q.err = badParam(key)
	}
	return n
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := &queryReader{r: r}
	filter := models.ListFilter{
		Brand:        q.str("brand"),
		Model:        q.str("model"),
		Color:        q.str("color"),
		Transmission: q.str("transmission"),
		FuelType:     q.first("fuel_type", "fuelType"),
		MinPrice:     q.int64("minPrice"),
		MaxPrice:     q.int64("maxPrice"),
		MinYear:      q.int("minYear"),
		MaxYear:      q.int("maxYear"),
		Search:       q.str("search"),
	}
	page, limit := q.int("page"), q.int("limit")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	result, err := s.catalog.ListRecords(r.Context(), filter, page, limit, q.str("sortBy"), q.str("sortOrder"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.catalog.FacetSummary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	listing, err := s.catalog.GetByID(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleScrape(w http.ResponseWriter, _ *http.Request) {
	err := s.trigger.Start(s.ctx, models.KindManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, worker.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a scrape is already running")
	default:
		s.fail(w, err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := &queryReader{r: r}
	limit := q.int("limit")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []*models.ScrapingRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// fail maps service errors to responses. Details stay in the log.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		s.logger.Error("[api] %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"famcal/internal/config"
	"famcal/internal/ics"
	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/recur"
	"famcal/internal/series"
	"famcal/internal/storage"
)

// Server exposes the recurrence engine over HTTP: series CRUD, windowed
// instance queries, edit-scope mutations, and the ICS feed.
type Server struct {
	cfg *config.Config
	svc *series.Service
	loc *time.Location
	mux *http.ServeMux
}

// NewServer constructs a Server around the series service. The config's
// timezone is resolved once; an unknown zone falls back to UTC.
func NewServer(cfg *config.Config, svc *series.Service) *Server {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("unknown timezone, falling back to UTC", err, "timezone", cfg.Timezone)
		loc = time.UTC
	}
	s := &Server{
		cfg: cfg,
		svc: svc,
		loc: loc,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server, wrapped with basic auth
// when credentials are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs an http.Server on cfg.Listen and shuts it down gracefully when
// ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="famcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	s.mux.HandleFunc("GET /api/series", s.handleListSeries)
	s.mux.HandleFunc("GET /api/series/{id}", s.handleGetSeries)
	s.mux.HandleFunc("POST /api/series/{id}/edit", s.handleEditSeries)
	s.mux.HandleFunc("POST /api/series/{id}/skip", s.handleSkipOccurrence)
	s.mux.HandleFunc("DELETE /api/series/{id}", s.handleDeactivateSeries)

	s.mux.HandleFunc("GET /api/instances", s.handleInstances)
	s.mux.HandleFunc("GET /feed.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// createSeriesRequest is the wire form of a new series. Dates travel as
// "YYYY-MM-DD" strings.
type createSeriesRequest struct {
	FamilyID string           `json:"family_id"`
	Kind     model.SeriesKind `json:"kind"`
	Rule     ruleRequest      `json:"rule"`
	Start    string           `json:"start"`
	End      string           `json:"end,omitempty"`
	Payload  model.Payload    `json:"payload"`
}

type ruleRequest struct {
	Frequency      model.Frequency   `json:"frequency"`
	Interval       int               `json:"interval"`
	Weekdays       []time.Weekday    `json:"weekdays,omitempty"`
	MonthlyMode    model.MonthlyMode `json:"monthly_mode,omitempty"`
	MonthDay       int               `json:"month_day,omitempty"`
	WeekdayOrdinal int               `json:"weekday_ordinal,omitempty"`
	Weekday        time.Weekday      `json:"weekday,omitempty"`
	EndType        model.EndType     `json:"end_type"`
	EndDate        string            `json:"end_date,omitempty"`
	EndCount       int               `json:"end_count,omitempty"`
}

func (rr ruleRequest) toRule() (model.Rule, error) {
	rule := model.Rule{
		Frequency:      rr.Frequency,
		Interval:       rr.Interval,
		Weekdays:       rr.Weekdays,
		MonthlyMode:    rr.MonthlyMode,
		MonthDay:       rr.MonthDay,
		WeekdayOrdinal: rr.WeekdayOrdinal,
		Weekday:        rr.Weekday,
		EndType:        rr.EndType,
		EndCount:       rr.EndCount,
	}
	if rr.EndDate != "" {
		d, err := parseDateParam(rr.EndDate)
		if err != nil {
			return model.Rule{}, err
		}
		rule.EndDate = &d
	}
	return rule, nil
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var req createSeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	rule, err := req.Rule.toRule()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDateParam(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sr := model.Series{
		FamilyID: req.FamilyID,
		Kind:     req.Kind,
		Rule:     rule,
		Start:    start,
		Payload:  req.Payload,
	}
	if req.End != "" {
		end, err := parseDateParam(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sr.End = &end
	}

	created, err := s.svc.Create(r.Context(), sr)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("family_id")
	if familyID == "" {
		writeError(w, http.StatusBadRequest, "family_id is required")
		return
	}
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	list, err := s.svc.List(r.Context(), familyID, activeOnly)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	sr, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (s *Server) handleDeactivateSeries(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editRequest struct {
	Scope series.Scope `json:"scope"`
	Date  string       `json:"date,omitempty"`
	Patch *model.Patch `json:"patch,omitempty"`
	Rule  *ruleRequest `json:"rule,omitempty"`
}

func (s *Server) handleEditSeries(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = parseDateParam(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if req.Scope != series.ScopeAllOccurrences {
		writeError(w, http.StatusBadRequest, "date is required for scope "+string(req.Scope))
		return
	}

	var newRule *model.Rule
	if req.Rule != nil {
		rule, err := req.Rule.toRule()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		newRule = &rule
	}

	err := s.svc.ApplyEdit(r.Context(), req.Scope, r.PathValue("id"), date, req.Patch, newRule)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type skipRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleSkipOccurrence(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	date, err := parseDateParam(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.SkipOccurrence(r.Context(), r.PathValue("id"), date); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type instancesResponse struct {
	From      string           `json:"from"`
	To        string           `json:"to"`
	Instances []model.Instance `json:"instances"`
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var instances []model.Instance
	switch {
	case q.Get("series_id") != "":
		instances, err = s.svc.Instances(r.Context(), q.Get("series_id"), from, to)
	case q.Get("family_id") != "":
		instances, err = s.svc.FamilyInstances(r.Context(), q.Get("family_id"), from, to)
	default:
		writeError(w, http.StatusBadRequest, "series_id or family_id is required")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instancesResponse{
		From:      model.ISODate(from),
		To:        model.ISODate(to),
		Instances: instances,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	familyID := q.Get("family_id")
	if familyID == "" {
		writeError(w, http.StatusBadRequest, "family_id is required")
		return
	}
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	instances, err := s.svc.FamilyInstances(r.Context(), familyID, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(instances, "famcal "+familyID, s.loc)))
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, model.ErrInvalidSeries),
		errors.Is(err, model.ErrInvalidException),
		errors.Is(err, series.ErrUnknownScope),
		errors.Is(err, series.ErrNoOccurrence),
		errors.Is(err, recur.ErrBadRange):
		status = http.StatusBadRequest
	case errors.Is(err, series.ErrSplitConflict),
		errors.Is(err, model.ErrDuplicateException):
		status = http.StatusConflict
	case errors.Is(err, recur.ErrRangeTooLarge):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New(`missing date, want "YYYY-MM-DD"`)
	}
	d, err := time.ParseInLocation(model.ISODateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, errors.New(`bad date ` + v + `, want "YYYY-MM-DD"`)
	}
	return d, nil
}

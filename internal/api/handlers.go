package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"recaps/internal/types"
)

const (
	maxInvokeBodySize  = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// ReportStatus is the body of GET /v1/reports/{id}.
type ReportStatus struct {
	Report    *types.Report       `json:"report"`
	Pages     []types.StatusCount `json:"pages"`
	Artifacts []types.StatusCount `json:"artifacts"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently. Any failure yields 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	results := make([]error, len(s.Probes))
	var g errgroup.Group
	for i, p := range s.Probes {
		g.Go(func() error {
			results[i] = p.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "healthy", Components: map[string]string{}}
	status := http.StatusOK
	for i, p := range s.Probes {
		if results[i] != nil {
			resp.Status = "unhealthy"
			resp.Components[p.Name()] = results[i].Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[p.Name()] = "ok"
	}
	JSON(w, r, status, resp)
}

// HandleListReports lists the most recent reports. ?limit caps the count.
func (s *Server) HandleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload,
				"limit must be between 1 and 200", nil, map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	reports, err := s.Reports.ListRecent(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	if reports == nil {
		reports = []types.Report{}
	}
	JSON(w, r, http.StatusOK, reports)
}

// HandleGetReport returns a report with page and artifact histograms.
func (s *Server) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	report, err := s.Reports.GetByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}

	out := ReportStatus{Report: report}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		out.Pages, err = s.Pages.CountByStatus(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		out.Artifacts, err = s.Artifacts.CountByStatus(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		Error(w, r, err)
		return
	}
	if out.Pages == nil {
		out.Pages = []types.StatusCount{}
	}
	if out.Artifacts == nil {
		out.Artifacts = []types.StatusCount{}
	}
	JSON(w, r, http.StatusOK, out)
}

// HandleListPages lists the page logs of a report in offset order.
func (s *Server) HandleListPages(w http.ResponseWriter, r *http.Request) {
	id, err := reportIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}
	if _, err := s.Reports.GetByID(r.Context(), id); err != nil {
		Error(w, r, err)
		return
	}

	pages, err := s.Pages.ListByReport(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	if pages == nil {
		pages = []types.PageLog{}
	}
	JSON(w, r, http.StatusOK, pages)
}

// HandleInvoke runs a direct-invocation payload synchronously.
func (s *Server) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInvokeBodySize))
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not exceed 1MB", err))
		return
	}
	if len(body) == 0 {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not be empty", nil))
		return
	}

	out, err := s.Invoker.Direct(r.Context(), body)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, out)
}

func reportIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload,
			"report id must be a positive integer", err, map[string]any{"id": raw})
	}
	return id, nil
}

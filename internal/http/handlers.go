package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"billetera/internal/core"
	"billetera/internal/log"
)

// writeError maps the error taxonomy to a status code. Expected errors
// are the caller's problem and are logged at warn; the rest at error
// level with a generic body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context())

	var ibe *core.InsufficientBalanceError
	switch {
	case errors.As(err, &ibe):
		logger.WarnContext(r.Context(), "Request rejected",
			log.FieldOperation, op, log.FieldDeficit, ibe.Deficit().String())
		InsufficientBalanceResponse(ibe).Write(w)
	case errors.Is(err, core.ErrInvalidInput):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.WarnContext(r.Context(), "Request abandoned", log.FieldOperation, op, log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "request cancelled").Write(w)
	default:
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
		InternalServerError().Write(w)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady pings the backend and reports the request counters.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "backend unavailable").Write(w)
			return
		}
	}
	requests, detection, rejected := s.Metrics()
	NewJSONResponse().Body(map[string]any{
		"status":              "ready",
		"requests":            requests.TotalRequests,
		"server_errors":       requests.ServerErrors,
		"suspicious_requests": detection.SuspiciousRequests,
		"rate_limited":        rejected,
	}).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	NewJSONResponse().Body(MeResponse{User: u, DisplayName: u.DisplayName()}).Write(w)
}

// handleCategories lists one type, or both when type is omitted.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	types := []core.TxType{core.Income, core.Expense}
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		t, err := core.ParseTxType(v)
		if err != nil {
			s.writeError(w, r, log.OpList, err)
			return
		}
		types = []core.TxType{t}
	}

	var all []core.Category
	for _, t := range types {
		cats, err := s.categories.ListByType(r.Context(), t)
		if err != nil {
			s.writeError(w, r, log.OpList, err)
			return
		}
		all = append(all, cats...)
	}
	NewJSONResponse().Body(map[string]any{"categories": NewCategoryResponses(all)}).Write(w)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	b, err := s.ledger.CurrentBalance(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, log.OpBalance, err)
		return
	}
	NewJSONResponse().Body(NewBalanceResponse(u.ID, b)).Write(w)
}

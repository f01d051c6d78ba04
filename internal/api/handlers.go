package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/domainwatch/internal/availability"
	"github.com/ignite/domainwatch/internal/domain"
	"github.com/ignite/domainwatch/internal/metrics"
	"github.com/ignite/domainwatch/internal/pkg/httputil"
	"github.com/ignite/domainwatch/internal/pkg/logger"
	"github.com/ignite/domainwatch/internal/registration"
	"github.com/ignite/domainwatch/internal/suggest"
)

// Response messages for POST /notify.
const (
	MsgRegistered        = "Notification registered"
	MsgAlreadyRegistered = "Already registered for this domain"
)

// Handlers serves the public JSON endpoints.
type Handlers struct {
	checker     availability.Checker
	store       registration.Store
	suggestions *SuggestionFilter
	metrics     *metrics.Metrics

	serviceName string
	defaultMax  int
	maxAllowed  int
}

// HandlerOptions carries the non-dependency settings for Handlers.
type HandlerOptions struct {
	ServiceName string
	DefaultMax  int
	MaxAllowed  int
	Concurrency int
}

// NewHandlers wires the handlers. checker is used for both the primary
// lookup and the suggestion candidates.
func NewHandlers(checker availability.Checker, store registration.Store, m *metrics.Metrics, opts HandlerOptions) *Handlers {
	if opts.DefaultMax <= 0 {
		opts.DefaultMax = 6
	}
	if opts.MaxAllowed <= 0 {
		opts.MaxAllowed = 20
	}
	return &Handlers{
		checker:     checker,
		store:       store,
		suggestions: NewSuggestionFilter(checker, opts.Concurrency),
		metrics:     m,
		serviceName: opts.ServiceName,
		defaultMax:  opts.DefaultMax,
		maxAllowed:  opts.MaxAllowed,
	}
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

// Home reports that the service is up.
//
//	GET /
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, ServiceInfo{Service: h.serviceName, Status: "running"})
}

// CheckRequest is the body of POST /check.
type CheckRequest struct {
	Query          string `json:"query"`
	MaxSuggestions *int   `json:"max_suggestions,omitempty"`
}

// CheckResponse is the body of a successful POST /check.
type CheckResponse struct {
	Domain      string   `json:"domain"`
	Available   bool     `json:"available"`
	Suggestions []string `json:"suggestions"`
}

// Check looks up the queried domain and returns available alternatives.
// Suggestions are produced whether or not the domain itself is free.
//
//	POST /check
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	query := strings.ToLower(strings.TrimSpace(req.Query))
	target := domain.NormalizeDomain(query)
	if target == "" {
		httputil.BadRequest(w, "query is required")
		return
	}

	limit := h.defaultMax
	if req.MaxSuggestions != nil {
		limit = *req.MaxSuggestions
	}
	limit = clamp(limit, 0, h.maxAllowed)

	available, err := h.checker.Check(r.Context(), target)
	if err != nil {
		logger.Warn("primary availability lookup failed", "domain", target, "error", err)
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	candidates := suggest.Generate(query, limit)
	httputil.OK(w, CheckResponse{
		Domain:      target,
		Available:   available,
		Suggestions: h.suggestions.Filter(r.Context(), candidates, limit),
	})
}

// NotifyRequest is the body of POST /notify.
type NotifyRequest struct {
	Domain string `json:"domain"`
	Email  string `json:"email"`
}

// Notify records interest in a domain. A second request for the same
// domain and email while the first is still pending is acknowledged with
// 200 and changes nothing.
//
//	POST /notify
func (h *Handlers) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Domain) == "" || strings.TrimSpace(req.Email) == "" {
		httputil.BadRequest(w, "domain and email are required")
		return
	}

	res, err := h.store.Register(r.Context(), req.Domain, req.Email)
	if err != nil {
		h.metrics.IncRegistration("error")
		var storeErr *registration.StoreError
		if !errors.As(err, &storeErr) {
			err = &registration.StoreError{Op: "register", Err: err}
		}
		httputil.InternalError(w, err)
		return
	}

	if !res.Created {
		h.metrics.IncRegistration("duplicate")
		httputil.Message(w, http.StatusOK, MsgAlreadyRegistered)
		return
	}

	h.metrics.IncRegistration("created")
	logger.Info("notification registered",
		"registration_id", res.Registration.ID,
		"domain", res.Registration.Domain,
		"email", res.Registration.Email,
	)
	httputil.Created(w, httputil.MessageResponse{Message: MsgRegistered})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"repoaudit/internal/audit"
	"repoaudit/internal/config"
	"repoaudit/internal/logging"
	"repoaudit/internal/merge"
	"repoaudit/internal/progress"
	"repoaudit/internal/source"
	"repoaudit/internal/types"
)

// Auditor is the part of audit.Runner the handlers use.
type Auditor interface {
	Run(ctx context.Context, req audit.Request) (*types.ScanReport, error)
	Stream(ctx context.Context, req audit.Request) <-chan progress.Event
}

type Handler struct {
	auditor  Auditor
	provider config.ProviderConfig
	log      *zap.Logger
}

// NewHandler uses provider for every run; requests may only pick a model.
func NewHandler(a Auditor, provider config.ProviderConfig, logger *zap.Logger) *Handler {
	return &Handler{auditor: a, provider: provider, log: logging.OrNop(logger)}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Route("/v1/audits", func(r chi.Router) {
		r.Post("/", h.createAudit)
		r.Get("/stream", h.streamAudit)
	})
	return r
}

type auditRequest struct {
	Repo    string `json:"repo"`
	Token   string `json:"token,omitempty"`
	Model   string `json:"model,omitempty"`
	NoCache bool   `json:"no_cache,omitempty"`
}

func (a *auditRequest) Bind(*http.Request) error {
	if strings.TrimSpace(a.Repo) == "" {
		return errors.New("repo is required")
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"upstream_status,omitempty"`
}

func (h *Handler) request(in auditRequest) (audit.Request, error) {
	ref, err := types.ParseRepoRef(in.Repo)
	if err != nil {
		return audit.Request{}, err
	}
	provider := h.provider
	if m := strings.TrimSpace(in.Model); m != "" {
		provider.Model = m
	}
	return audit.Request{Repo: ref, Token: strings.TrimSpace(in.Token), Provider: provider, NoCache: in.NoCache}, nil
}

func (h *Handler) createAudit(w http.ResponseWriter, r *http.Request) {
	var in auditRequest
	if err := render.Bind(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req, err := h.request(in)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != "" && format != "json" && format != "markdown" && format != "sarif" {
		writeError(w, r, http.StatusBadRequest, errors.New("format must be json, markdown or sarif"))
		return
	}

	report, err := h.auditor.Run(r.Context(), req)
	if err != nil {
		h.log.Warn("audit request failed", zap.String("repo", in.Repo), zap.Error(err))
		writeError(w, r, statusFor(err), err)
		return
	}

	switch format {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(report.RenderedSummary))
	case "sarif":
		var buf bytes.Buffer
		if err := merge.WriteSARIF(&buf, *report); err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/sarif+json")
		_, _ = w.Write(buf.Bytes())
	default:
		render.JSON(w, r, report)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := errorBody{Error: err.Error()}
	var fe *source.FetchError
	if errors.As(err, &fe) {
		body.Status = fe.Status
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

func statusFor(err error) int {
	var fe *source.FetchError
	switch {
	case errors.Is(err, source.ErrArchiveTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, audit.ErrRunTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &fe):
		if fe.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

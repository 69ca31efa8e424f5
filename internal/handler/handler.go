// Package handler exposes the bot's read-only status API over gin.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atrSignalBot/internal/app"
	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
)

// StatusProvider is the view of the signal service the API reads from.
type StatusProvider interface {
	ActiveParameters() *domain.ParameterSet
	Evaluators() []app.TaskStatus
	Paused() bool
}

type Handler struct {
	status   StatusProvider
	signals  ports.SignalRepository
	gatherer prometheus.Gatherer
}

// New creates the API handler. signals and gatherer may be nil, which
// disables /api/signals and /metrics respectively.
func New(status StatusProvider, signals ports.SignalRepository, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		status:   status,
		signals:  signals,
		gatherer: gatherer,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/api/parameters", h.GetParameters)
	r.GET("/api/parameters/:symbol/:timeframe", h.GetParameter)
	r.GET("/api/evaluators", h.GetEvaluators)
	if h.signals != nil {
		r.GET("/api/signals", h.GetSignals)
	}
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

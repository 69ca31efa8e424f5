package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
)

type parameterJSON struct {
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"`
	TPMultiplier float64 `json:"tpMultiplier"`
	SLMultiplier float64 `json:"slMultiplier"`
}

// GetParameters returns the active parameter set.
func (h *Handler) GetParameters(c *gin.Context) {
	set := h.status.ActiveParameters()
	params := make([]parameterJSON, 0, set.Len())
	var computedAt *time.Time
	if set != nil {
		for _, p := range set.Parameters {
			params = append(params, parameterJSON{
				Symbol:       p.Symbol,
				Timeframe:    p.Timeframe,
				TPMultiplier: p.TPMultiplier,
				SLMultiplier: p.SLMultiplier,
			})
		}
		if !set.ComputedAt.IsZero() {
			computedAt = &set.ComputedAt
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"computedAt": computedAt,
		"parameters": params,
	})
}

// GetParameter returns the active parameter of one (symbol, timeframe) pair.
func (h *Handler) GetParameter(c *gin.Context) {
	key := domain.PairKey{
		Symbol:    strings.ToUpper(c.Param("symbol")),
		Timeframe: c.Param("timeframe"),
	}
	p, err := lookupParameter(h.status.ActiveParameters(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, parameterJSON{
		Symbol:       p.Symbol,
		Timeframe:    p.Timeframe,
		TPMultiplier: p.TPMultiplier,
		SLMultiplier: p.SLMultiplier,
	})
}

func lookupParameter(set *domain.ParameterSet, key domain.PairKey) (domain.TradeParameter, error) {
	p, ok := set.Lookup(key)
	if !ok {
		return domain.TradeParameter{}, fmt.Errorf("no active parameter for %s: %w", key, ports.ErrNotFound)
	}
	return p, nil
}

// GetEvaluators returns the state of every supervised evaluator.
func (h *Handler) GetEvaluators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paused":     h.status.Paused(),
		"evaluators": h.status.Evaluators(),
	})
}

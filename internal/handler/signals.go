package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"atrSignalBot/internal/domain"
)

type signalJSON struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Direction   string    `json:"direction"`
	EntryPrice  string    `json:"entryPrice"`
	StopLoss    string    `json:"stopLoss"`
	TakeProfit  string    `json:"takeProfit"`
	MaxLeverage int       `json:"maxLeverage,omitempty"`
	CandleTime  time.Time `json:"candleTime"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toSignalJSON(s *domain.Signal) signalJSON {
	return signalJSON{
		ID:          s.ID,
		Symbol:      s.Symbol,
		Timeframe:   s.Timeframe,
		Direction:   string(s.Direction),
		EntryPrice:  s.Levels.EntryPrice.String(),
		StopLoss:    s.Levels.StopLoss.String(),
		TakeProfit:  s.Levels.TakeProfit.String(),
		MaxLeverage: s.MaxLeverage,
		CandleTime:  s.CandleTime,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
	}
}

// GetSignals returns the most recently journaled signals, newest first.
// The limit query parameter defaults to 50 and is capped at 500.
func (h *Handler) GetSignals(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}

	signals, err := h.signals.RecentSignals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]signalJSON, 0, len(signals))
	for _, s := range signals {
		out = append(out, toSignalJSON(s))
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

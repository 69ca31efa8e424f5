package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"atrSignalBot/internal/domain"
)

// FormatAlert renders the channel message for a signal. riskFraction is the
// share of equity the disclaimer tells readers to risk (0.005 = 0.5%).
func FormatAlert(sig *domain.Signal, riskFraction float64) string {
	icon := "📈"
	if sig.Direction == domain.Short {
		icon = "📉"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 %s %s Signal for %s (%s) 🔔\n", icon, sig.Direction.Label(), sig.Symbol, sig.Timeframe)
	fmt.Fprintf(&sb, "🎯 Entry Price: %s\n", sig.Levels.EntryPrice.String())
	fmt.Fprintf(&sb, "🛑 Stop Loss (SL): %s\n", sig.Levels.StopLoss.String())
	fmt.Fprintf(&sb, "✅ Take Profit (TP): %s\n", sig.Levels.TakeProfit.String())
	if sig.MaxLeverage > 0 {
		fmt.Fprintf(&sb, "⚖️ Max Leverage: %dx\n", sig.MaxLeverage)
	}
	pct := decimal.NewFromFloat(riskFraction).Mul(decimal.NewFromInt(100))
	fmt.Fprintf(&sb, "⚠️ Risk Warning: Only risk %s%% of your equity per trade.\n", pct.String())
	sb.WriteString("🔄 Trade Safely!")
	return sb.String()
}

// Package reporter renders engine state as terminal tables.
package reporter

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"binance-grid-engine-go/internal/models"
)

// RenderStatuses writes one row per running grid.
func RenderStatuses(w io.Writer, statuses []models.GridStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		"Client", "Symbol", "State", "Center", "Price", "Spacing",
		"Orders", "Filled", "Regime", "Compound", "Profit",
	})
	for _, s := range statuses {
		t.AppendRow(table.Row{
			s.ClientID,
			s.Symbol,
			s.State,
			fmt.Sprintf("%.4f", s.CenterPrice),
			fmt.Sprintf("%.4f", s.CurrentPrice),
			fmt.Sprintf("%.2f%%", s.GridSpacing*100),
			fmt.Sprintf("%d/%d", s.ActiveOrders, s.TotalLevels),
			s.FilledLevels,
			s.VolatilityRegime,
			fmt.Sprintf("%.2fx", s.CompoundMultiplier),
			fmt.Sprintf("%.2f", s.Metrics.RealizedProfit),
		})
	}
	t.Render()
}

// RenderMetrics writes the accumulated counters per grid, one row per
// client/symbol key.
func RenderMetrics(w io.Writer, all map[string]models.PerformanceMetrics) {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		"Grid", "Trades", "Buys", "Sells", "Win rate", "Profit",
		"Adaptations", "Resets",
	})
	for _, k := range keys {
		m := all[k]
		t.AppendRow(table.Row{
			k,
			m.Trades,
			m.BuyFills,
			m.SellFills,
			fmt.Sprintf("%.1f%%", m.WinRate()*100),
			fmt.Sprintf("%.2f", m.RealizedProfit),
			m.Adaptations,
			m.Resets,
		})
	}
	t.Render()
}

package notifier

import (
	"fmt"
	"strings"
	"time"

	"LayerTrader/internal/model"
	"LayerTrader/internal/recorder"

	"github.com/dustin/go-humanize"
)

// PositionLine is one symbol's holding enriched for display.
type PositionLine struct {
	Position model.Position
	Price    float64
	Layers   int
}

func money(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// FormatStatus formats the account-level risk snapshot.
func FormatStatus(equity float64, g model.GlobalRiskState, lines []PositionLine) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>账户状态</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("总资产: %s\n", money(equity)))
	b.WriteString(fmt.Sprintf("资产高点: %s\n", money(g.MaxEquityObserved)))
	b.WriteString(fmt.Sprintf("当前回撤: %.1f%%\n", g.CurrentDrawdown*100))
	b.WriteString(fmt.Sprintf("当日已实现盈亏: %+.2f\n\n", g.DailyRealizedLoss))
	b.WriteString(FormatPositions(lines))
	return b.String()
}

// FormatPositions formats the per-symbol holdings table.
func FormatPositions(lines []PositionLine) string {
	var b strings.Builder
	b.WriteString("📦 <b>持仓明细</b>\n")
	empty := true
	for _, l := range lines {
		if l.Position.Flat() {
			continue
		}
		empty = false
		change := 0.0
		if l.Position.EntryPrice > 0 {
			change = (l.Price - l.Position.EntryPrice) / l.Position.EntryPrice * 100
		}
		b.WriteString(fmt.Sprintf("  %s: %d 股 @ %s (现价 %s, %+.1f%%, %d 层)\n",
			l.Position.Symbol, l.Position.Quantity,
			money(l.Position.EntryPrice), money(l.Price), change, l.Layers))
	}
	if empty {
		b.WriteString("  （空仓）\n")
	}
	return b.String()
}

// FormatDailySummary formats the end-of-session rollup.
func FormatDailySummary(sum *recorder.DailySummary, txs []model.Transaction) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>每日汇总</b> | %s\n\n", sum.Date))
	b.WriteString(fmt.Sprintf("成交笔数: %d\n", sum.Trades))
	b.WriteString(fmt.Sprintf("已实现盈亏: %+.2f\n", sum.RealizedPnL))
	b.WriteString(fmt.Sprintf("总资产: %s\n", money(sum.Equity)))
	b.WriteString(fmt.Sprintf("回撤: %.1f%%\n", sum.Drawdown*100))

	if len(txs) > 0 {
		b.WriteString("\n<b>当日成交:</b>\n")
		for _, tx := range txs {
			side := "买入"
			if tx.Action == model.ActionSell {
				side = "卖出"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s %d 股 @ %s (%s)\n",
				tx.Time.Format("15:04"), side, tx.Symbol, tx.Quantity, money(tx.Price), tx.Reason))
		}
	}
	return b.String()
}

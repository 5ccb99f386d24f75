package notification

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"signalbot/internal/model"
)

// Render turns a trade event into an alert with plain and HTML bodies.
func Render(ev model.TradeEvent) Alert {
	inst := ev.Instrument
	name := inst.DisplayName
	if name == "" {
		name = strings.ToUpper(inst.Pair)
	}

	var title string
	level := AlertInfo
	switch ev.Kind {
	case model.EventOpen:
		title = fmt.Sprintf("%s %s %s", name, ev.Action, ev.Side)
	case model.EventClose:
		title = fmt.Sprintf("%s EXIT %s (%s)", name, ev.Side, ev.Status)
		if ev.Status == model.StatusLoss {
			level = AlertWarning
		}
	default:
		title = fmt.Sprintf("%s %s", name, ev.Action)
	}

	ts := ev.Time.Format("02/01/2006 15:04:05")
	var plain, rich strings.Builder

	fmt.Fprintf(&plain, "price %s at %s", formatPrice(ev.Price), ts)
	fmt.Fprintf(&rich, "%s <b>%s</b>\n\n", signalEmoji(ev), html.EscapeString(headerLine(inst)))
	fmt.Fprintf(&rich, "<b>%s SIGNAL: %s</b>\n\n", actionColor(ev), html.EscapeString(signalText(ev)))
	fmt.Fprintf(&rich, "💰 <b>Price:</b> <code>%s</code>\n", formatPrice(ev.Price))
	fmt.Fprintf(&rich, "⏰ <b>Time:</b> %s\n", ts)

	switch ev.Kind {
	case model.EventOpen:
		fmt.Fprintf(&plain, "; entry %s SL %s TP %s",
			formatPrice(ev.EntryPrice), formatPrice(ev.StopLoss), formatPrice(ev.TakeProfit))
		rich.WriteString("\n📈 <b>Position:</b>\n")
		fmt.Fprintf(&rich, "Entry: <code>%s</code>\n", formatPrice(ev.EntryPrice))
		fmt.Fprintf(&rich, "Stop loss: <code>%s</code>\n", formatPrice(ev.StopLoss))
		fmt.Fprintf(&rich, "Take profit: <code>%s</code>\n", formatPrice(ev.TakeProfit))
	case model.EventClose:
		fmt.Fprintf(&plain, "; entry %s P/L %+.2f%% %s", formatPrice(ev.EntryPrice), ev.PnL*100, ev.Status)
		rich.WriteString("\n📈 <b>Closed position:</b>\n")
		fmt.Fprintf(&rich, "Entry: <code>%s</code>\n", formatPrice(ev.EntryPrice))
		fmt.Fprintf(&rich, "Exit: <code>%s</code>\n", formatPrice(ev.Price))
		fmt.Fprintf(&rich, "P/L: <code>%+.2f%%</code> %s %s\n", ev.PnL*100, statusEmoji(ev.Status), ev.Status)
	}

	if len(ev.Reasons) > 0 {
		fmt.Fprintf(&plain, "; %s", strings.Join(ev.Reasons, ", "))
		rich.WriteString("\n📊 <b>Analysis:</b>\n")
		for _, r := range ev.Reasons {
			fmt.Fprintf(&rich, "• %s\n", html.EscapeString(r))
		}
	}
	if len(ev.Market) > 0 {
		fmt.Fprintf(&rich, "\n📊 <b>Market:</b> %s\n", html.EscapeString(strings.Join(ev.Market, " | ")))
	}

	e := ev
	return Alert{
		Level:   level,
		Title:   title,
		Message: plain.String(),
		HTML:    strings.TrimRight(rich.String(), "\n"),
		Event:   &e,
	}
}

func headerLine(inst model.Instrument) string {
	name := inst.DisplayName
	if name == "" {
		name = inst.Name
	}
	pair := strings.ToUpper(strings.ReplaceAll(inst.Pair, "_", "/"))
	if inst.Emoji != "" {
		return fmt.Sprintf("%s %s (%s)", inst.Emoji, name, pair)
	}
	return fmt.Sprintf("%s (%s)", name, pair)
}

func signalText(ev model.TradeEvent) string {
	if ev.Kind == model.EventClose {
		return fmt.Sprintf("EXIT %s", ev.Side)
	}
	return string(ev.Action)
}

func signalEmoji(ev model.TradeEvent) string {
	switch {
	case ev.Kind == model.EventClose:
		return "🔔"
	case ev.Action == model.Buy:
		return "🚀"
	case ev.Action == model.Sell:
		return "🔻"
	}
	return "⏸"
}

func actionColor(ev model.TradeEvent) string {
	switch {
	case ev.Kind == model.EventClose:
		return "🟡"
	case ev.Action == model.Buy:
		return "🟢"
	case ev.Action == model.Sell:
		return "🔴"
	}
	return "⚪"
}

func statusEmoji(s model.TradeStatus) string {
	switch s {
	case model.StatusProfit:
		return "✅"
	case model.StatusLoss:
		return "❌"
	}
	return "➖"
}

// formatPrice keeps six decimals for sub-unit prices and groups thousands
// otherwise, e.g. 0.000123 or 1,234,567.50.
func formatPrice(p float64) string {
	if p != 0 && p < 1 && p > -1 {
		return strconv.FormatFloat(p, 'f', 6, 64)
	}
	s := strconv.FormatFloat(p, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + "." + frac
}

package display

import (
	"fmt"
	"sort"
	"strings"

	"market-feed/src/models"
	"market-feed/src/subscriber"

	"github.com/charmbracelet/lipgloss"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	// Status styles
	connectingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	// Trend styles
	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// ClearScreen clears the terminal screen
func ClearScreen() string {
	return "\033[2J\033[H"
}

// -----------------------------------------------------------------------------

// StatusLine renders the connection indicator.
func StatusLine(status subscriber.Status, err error) string {
	var style lipgloss.Style
	switch status {
	case subscriber.StatusConnected:
		style = connectedStyle
	case subscriber.StatusConnecting:
		style = connectingStyle
	case subscriber.StatusError:
		style = errorStyle
	default:
		style = mutedStyle
	}

	line := "● " + style.Render(status.String())
	if status == subscriber.StatusError && err != nil {
		line += mutedStyle.Render(" (" + err.Error() + ")")
	}
	return line
}

// -----------------------------------------------------------------------------

// Snapshot renders the commodity table, price history and forecasts.
func Snapshot(state *models.MMarketState) string {
	if state == nil {
		return mutedStyle.Render("Waiting for the first snapshot...")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("%-10s %9s %8s  %s", "Commodity", "Price", "Change", "History")))

	for _, c := range state.Commodities {
		trend := upStyle
		arrow := "▲"
		if c.Trend == models.TrendDown {
			trend = downStyle
			arrow = "▼"
		}

		history := ""
		if window, ok := state.PriceHistory[strings.ToLower(c.Name)]; ok && window != nil {
			history = Sparkline(window.Values())
		}

		fmt.Fprintf(&b, "%-10s %9.2f %s  %s\n",
			c.Name, c.Price,
			trend.Render(fmt.Sprintf("%s%+6.2f", arrow, c.Change)),
			mutedStyle.Render(history))
	}

	if len(state.Forecast) > 0 {
		keys := make([]string, 0, len(state.Forecast))
		for k := range state.Forecast {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Forecast"))
		b.WriteString("\n")
		for _, k := range keys {
			f := state.Forecast[k]
			fmt.Fprintf(&b, "%-10s short %-9s long %-9s confidence %s\n", k, f.ShortTerm, f.LongTerm, f.Confidence)
		}
	}

	return tableStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// -----------------------------------------------------------------------------

// Screen is the full watch view.
func Screen(url string, status subscriber.Status, err error, state *models.MMarketState) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Market feed")+" "+mutedStyle.Render(url),
		StatusLine(status, err),
		Snapshot(state),
	)
}

// -----------------------------------------------------------------------------

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline maps values onto block characters between their min and max.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[idx]
	}
	return string(out)
}

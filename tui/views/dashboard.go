package views

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dashboardDataMsg struct {
	stats          []db.SiteStats
	runs           []db.ScrapeRun
	dedupRuns      []db.DedupRun
	cityStats      []db.CityStats
	listingCount   int
	canonicalCount int
	mergedCount    int
	pendingMatches int
}

type logTailMsg struct {
	lines        []string
	modTime      time.Time
	daemonActive bool
}

type Dashboard struct {
	db             *db.Client
	width, height  int
	stats          []db.SiteStats
	runs           []db.ScrapeRun
	dedupRuns      []db.DedupRun
	cityStats      []db.CityStats
	listingCount   int
	canonicalCount int
	mergedCount    int
	pendingMatches int
	logLines       []string
	logPath        string
	daemonUnit     string
	logScroll      int // 0 = newest
	logViewport    int
	logBuffer      int
	logModTime     time.Time
	daemonActive   bool
}

func NewDashboard(dbClient *db.Client, logPath, daemonUnit string) Dashboard {
	if logPath == "" {
		logPath = "daemon.log"
	}
	return Dashboard{
		db:          dbClient,
		logPath:     logPath,
		daemonUnit:  daemonUnit,
		logViewport: 20,
		logBuffer:   200,
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.Refresh(), d.tailLog())
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		stats, _ := d.db.GetSiteStats()
		runs, _ := d.db.GetRecentRuns(8)
		dedupRuns, _ := d.db.GetRecentDedupRuns(5)
		cityStats, _ := d.db.GetCityStats()
		listingCount, _ := d.db.GetListingCount()
		canonicalCount, _ := d.db.GetCanonicalCount(false)
		mergedCount, _ := d.db.GetCanonicalCount(true)
		pendingMatches, _ := d.db.GetPendingMatchCount()
		return dashboardDataMsg{stats, runs, dedupRuns, cityStats, listingCount, canonicalCount, mergedCount, pendingMatches}
	}
}

func (d Dashboard) RefreshLog() tea.Cmd {
	return d.tailLog()
}

func (d Dashboard) tailLog() tea.Cmd {
	return func() tea.Msg {
		lines, modTime := readLastLines(d.logPath, d.logBuffer)
		return logTailMsg{lines, modTime, d.isDaemonActive(modTime)}
	}
}

// isDaemonActive asks systemd when a unit is configured. Without one, a log
// written to in the last two minutes counts as a live daemon.
func (d Dashboard) isDaemonActive(modTime time.Time) bool {
	if d.daemonUnit == "" {
		return !modTime.IsZero() && time.Since(modTime) < 2*time.Minute
	}
	out, err := exec.Command("systemctl", "is-active", d.daemonUnit).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}

func readLastLines(path string, n int) ([]string, time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	modTime := info.ModTime()

	f, err := os.Open(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	defer f.Close()

	var allLines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	if len(allLines) == 0 {
		return []string{"(empty log)"}, modTime
	}

	start := len(allLines) - n
	if start < 0 {
		start = 0
	}
	return allLines[start:], modTime
}

func (d Dashboard) SetSize(w, h int) Dashboard {
	d.width = w
	d.height = h
	return d
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.stats = msg.stats
		d.runs = msg.runs
		d.dedupRuns = msg.dedupRuns
		d.cityStats = msg.cityStats
		d.listingCount = msg.listingCount
		d.canonicalCount = msg.canonicalCount
		d.mergedCount = msg.mergedCount
		d.pendingMatches = msg.pendingMatches
		return d, d.tailLog()
	case logTailMsg:
		d.logLines = msg.lines
		d.logModTime = msg.modTime
		d.daemonActive = msg.daemonActive
	case tea.KeyMsg:
		maxScroll := len(d.logLines) - d.logViewport
		if maxScroll < 0 {
			maxScroll = 0
		}
		switch msg.String() {
		case "up", "k":
			d.logScroll = min(d.logScroll+1, maxScroll)
		case "down", "j":
			d.logScroll = max(d.logScroll-1, 0)
		case "pgup":
			d.logScroll = min(d.logScroll+10, maxScroll)
		case "pgdown":
			d.logScroll = max(d.logScroll-10, 0)
		case "home":
			d.logScroll = maxScroll
		case "end":
			d.logScroll = 0
		}
	}
	return d, nil
}

// SelectedSite is the site a "scrape site" command targets: the site of the
// most recent run, or the first configured site.
func (d Dashboard) SelectedSite() string {
	if len(d.runs) > 0 {
		return d.runs[0].SiteID
	}
	if len(d.stats) > 0 {
		return d.stats[0].SiteID
	}
	return ""
}

func (d Dashboard) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("Dashboard"),
		d.renderStatCards(),
		"",
		d.renderSiteCards(),
		"",
		d.renderCityCards(),
		"",
		styles.Title.Render("Recent Scrapes"),
		d.renderRunsTable(),
		styles.Title.Render("Recent Dedup Passes"),
		d.renderDedupTable(),
		d.renderLogTail(),
	)
}

func (d Dashboard) renderLogTail() string {
	if len(d.logLines) == 0 {
		content := styles.Muted.Render("(waiting for logs...)")
		return styles.LogBox.Width(d.width - 4).Render(content)
	}

	total := len(d.logLines)
	endIdx := total - d.logScroll
	startIdx := endIdx - d.logViewport
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > total {
		endIdx = total
	}

	maxLineWidth := d.width - 8
	var lines []string
	for _, line := range d.logLines[startIdx:endIdx] {
		lines = append(lines, styleLogLine(line, maxLineWidth))
	}

	var scrollInfo string
	switch {
	case !d.daemonActive:
		scrollInfo = styles.StatusError.Render(" ● STOPPED ")
	case d.logScroll > 0:
		scrollInfo = styles.StatusPending.Render(fmt.Sprintf(" ↑%d ", d.logScroll))
	default:
		scrollInfo = styles.StatusSuccess.Render(" ● LIVE ")
	}

	header := styles.Title.Render("Daemon Log") + scrollInfo +
		styles.Muted.Render(fmt.Sprintf("[%d-%d/%d]", startIdx+1, endIdx, total))

	return styles.LogBox.Width(d.width - 4).Render(header + "\n" + strings.Join(lines, "\n"))
}

// logLine is one decoded line of the daemon's JSON log file.
type logLine struct {
	Time    string
	Level   string
	Logger  string
	Message string
	Fields  string
}

var logReservedKeys = map[string]bool{
	"level": true, "ts": true, "logger": true, "msg": true, "caller": true, "stacktrace": true,
}

func parseLogLine(line string) (logLine, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return logLine{}, false
	}
	msg, ok := raw["msg"].(string)
	if !ok {
		return logLine{}, false
	}

	out := logLine{Message: msg}
	if lvl, ok := raw["level"].(string); ok {
		out.Level = strings.ToUpper(lvl)
	}
	if name, ok := raw["logger"].(string); ok {
		out.Logger = name
	}
	if ts, ok := raw["ts"].(string); ok {
		if t, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts); err == nil {
			out.Time = t.Format("15:04:05")
		} else {
			out.Time = ts
		}
	}

	var keys []string
	for k := range raw {
		if !logReservedKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var fields []string
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, raw[k]))
	}
	out.Fields = strings.Join(fields, " ")
	return out, true
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case "ERROR", "DPANIC", "PANIC", "FATAL":
		return styles.StatusError
	case "WARN":
		return styles.StatusPending
	case "INFO":
		return styles.LogInfo
	case "DEBUG":
		return styles.Muted
	}
	return lipgloss.NewStyle()
}

func styleLogLine(line string, maxWidth int) string {
	parsed, ok := parseLogLine(line)
	if !ok {
		line = truncate(line, maxWidth)
		switch {
		case strings.Contains(line, "ERROR"):
			return styles.StatusError.Render(line)
		case strings.Contains(line, "WARN"):
			return styles.StatusPending.Render(line)
		}
		return line
	}

	text := parsed.Message
	if parsed.Fields != "" {
		text += " " + parsed.Fields
	}
	prefixWidth := len(parsed.Time) + len(parsed.Logger) + 9
	text = truncate(text, maxWidth-prefixWidth)

	out := styles.LogTimestamp.Render(parsed.Time) + " " +
		levelStyle(parsed.Level).Render(fmt.Sprintf("%-5s", parsed.Level)) + " "
	if parsed.Logger != "" {
		out += styles.LogLogger.Render(parsed.Logger) + " "
	}
	return out + levelStyle(parsed.Level).Render(text)
}

func (d Dashboard) renderStatCards() string {
	cards := []string{
		d.renderStatCard("Listings", fmt.Sprintf("%d", d.listingCount)),
		d.renderStatCard("Canonical", fmt.Sprintf("%d", d.canonicalCount)),
		d.renderStatCard("Merged", fmt.Sprintf("%d", d.mergedCount)),
		d.renderStatCard("Dedup Rate", d.latestDedupRate()),
		d.renderStatCard("Matches Q", fmt.Sprintf("%d", d.pendingMatches)),
		d.renderStatCard("Sites", fmt.Sprintf("%d", len(d.stats))),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (d Dashboard) latestDedupRate() string {
	for _, r := range d.dedupRuns {
		if r.Status == "completed" && r.DeduplicationRate != "" {
			return r.DeduplicationRate
		}
	}
	return "-"
}

func (d Dashboard) renderStatCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.StatValue.Render(value),
		styles.StatLabel.Render(label),
	)
	return styles.CardBorder.Width(14).Render(content)
}

func (d Dashboard) renderSiteCards() string {
	if len(d.stats) == 0 {
		return styles.Muted.Render("No scrape runs recorded")
	}

	var cards []string
	for _, s := range d.stats {
		cards = append(cards, d.renderSiteCard(s))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (d Dashboard) renderSiteCard(s db.SiteStats) string {
	status := "○ never run"
	statusStyle := styles.StatusPending
	if s.LastRunStatus != nil {
		switch *s.LastRunStatus {
		case "completed":
			status = "✓ completed"
			statusStyle = styles.StatusSuccess
		case "failed":
			status = "✗ failed"
			statusStyle = styles.StatusError
		case "running":
			status = "◐ running"
		}
	}

	lastRun := "never"
	if s.LastRunAt != nil {
		lastRun = relativeTime(*s.LastRunAt)
	}

	lines := []string{
		styles.StatValue.Render(s.SiteID),
		statusStyle.Render(status),
		styles.StatLabel.Render(fmt.Sprintf("Last: %s", lastRun)),
		styles.StatLabel.Render(fmt.Sprintf("New: %d", s.TotalListings)),
		styles.StatLabel.Render(fmt.Sprintf("Rate: %.0f%%  Avg: %ds", s.SuccessRate*100, s.AvgRunDuration)),
	}
	if s.PendingResumes > 0 {
		lines = append(lines, styles.StatusPending.Render(fmt.Sprintf("Resume: %d region(s)", s.PendingResumes)))
	}
	return styles.SiteCardBorder.Width(24).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (d Dashboard) renderCityCards() string {
	if len(d.cityStats) == 0 {
		return ""
	}

	var cards []string
	for _, c := range d.cityStats {
		content := lipgloss.JoinVertical(lipgloss.Left,
			styles.StatValue.Render(truncate(c.City, 18)),
			styles.StatLabel.Render(fmt.Sprintf("Canonical: %d", c.CanonicalCount)),
			styles.StatLabel.Render(fmt.Sprintf("Merged: %d", c.MergedCount)),
			styles.StatLabel.Render(fmt.Sprintf("Venta %d / Alquiler %d", c.SaleCount, c.RentCount)),
		)
		cards = append(cards, styles.CityCardBorder.Width(22).Render(content))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func runStatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return styles.StatusSuccess
	case "failed":
		return styles.StatusError
	}
	return styles.StatusPending
}

func (d Dashboard) renderRunsTable() string {
	if len(d.runs) == 0 {
		return styles.Muted.Render("No runs yet")
	}

	header := fmt.Sprintf("%-14s %-10s %-10s %6s %6s %6s",
		"Site", "Status", "Started", "Found", "New", "Errors")
	rows := styles.TableHeader.Render(header) + "\n"

	for _, r := range d.runs {
		row := fmt.Sprintf("%-14s %s %-10s %6d %6d %6d",
			truncate(r.SiteID, 14),
			runStatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			r.StartedAt.Local().Format("15:04:05"),
			r.ListingsFound,
			r.ListingsNew,
			r.ErrorsCount,
		)
		rows += row + "\n"
	}
	return rows
}

func (d Dashboard) renderDedupTable() string {
	if len(d.dedupRuns) == 0 {
		return styles.Muted.Render("No dedup passes yet") + "\n"
	}

	header := fmt.Sprintf("%-10s %-10s %7s %7s %7s %7s %7s",
		"Started", "Status", "In", "Out", "Dupes", "Merged", "Rate")
	rows := styles.TableHeader.Render(header) + "\n"

	for _, r := range d.dedupRuns {
		row := fmt.Sprintf("%-10s %s %7d %7d %7d %7d %7s",
			r.StartedAt.Local().Format("15:04:05"),
			runStatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			r.ListingsIn,
			r.ListingsOut,
			r.DuplicatesRemoved,
			r.MergedClusters,
			r.DeduplicationRate,
		)
		rows += row + "\n"
	}
	return rows
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

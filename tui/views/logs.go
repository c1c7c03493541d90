package views

import (
	"fmt"
	"strings"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var logLevels = []string{"ALL", "INFO", "WARN", "ERROR"}

// scope filters cycle through every site plus the dedup pass.
const allScopes = ""

type logsMsg struct {
	logs []db.RunLog
}

type Logs struct {
	db            *db.Client
	width, height int
	logs          []db.RunLog
	levelIndex    int
	scope         string
	scrollOffset  int
}

func NewLogs(dbClient *db.Client) Logs {
	return Logs{db: dbClient}
}

func (l Logs) Init() tea.Cmd {
	return l.Refresh()
}

func (l Logs) Refresh() tea.Cmd {
	level := logLevels[l.levelIndex]
	return func() tea.Msg {
		logs, _ := l.db.GetRecentLogs(300, level)
		return logsMsg{logs}
	}
}

func (l Logs) SetSize(w, h int) Logs {
	l.width = w
	l.height = h
	return l
}

func (l Logs) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logsMsg:
		l.logs = msg.logs
		l.scrollOffset = 0

	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h":
			if l.levelIndex > 0 {
				l.levelIndex--
				return l, l.Refresh()
			}
		case "right":
			if l.levelIndex < len(logLevels)-1 {
				l.levelIndex++
				return l, l.Refresh()
			}
		case "f":
			l.scope = nextScope(l.scopes(), l.scope)
			l.scrollOffset = 0
		case "up", "k":
			if l.scrollOffset > 0 {
				l.scrollOffset--
			}
		case "down", "j":
			if l.scrollOffset < l.maxScroll() {
				l.scrollOffset++
			}
		case "g":
			l.scrollOffset = 0
		case "G":
			l.scrollOffset = l.maxScroll()
		}
	}
	return l, nil
}

// scopes lists the distinct scopes present in the loaded logs, in order of
// first appearance.
func (l Logs) scopes() []string {
	seen := map[string]bool{}
	var out []string
	for _, log := range l.logs {
		if log.Scope != "" && !seen[log.Scope] {
			seen[log.Scope] = true
			out = append(out, log.Scope)
		}
	}
	return out
}

func nextScope(scopes []string, current string) string {
	if current == allScopes {
		if len(scopes) == 0 {
			return allScopes
		}
		return scopes[0]
	}
	for i, s := range scopes {
		if s == current && i+1 < len(scopes) {
			return scopes[i+1]
		}
	}
	return allScopes
}

func (l Logs) filtered() []db.RunLog {
	if l.scope == allScopes {
		return l.logs
	}
	var out []db.RunLog
	for _, log := range l.logs {
		if log.Scope == l.scope {
			out = append(out, log)
		}
	}
	return out
}

func (l Logs) visibleLines() int {
	if l.height <= 6 {
		return 20
	}
	return l.height - 6
}

func (l Logs) maxScroll() int {
	return max(len(l.filtered())-l.visibleLines(), 0)
}

func (l Logs) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("Run Logs"),
		l.renderFilter(),
		"",
		l.renderLogs(),
	)
}

func (l Logs) renderFilter() string {
	var parts []string
	for i, level := range logLevels {
		if i == l.levelIndex {
			parts = append(parts, styles.TabActive.Render("["+level+"]"))
		} else {
			parts = append(parts, styles.TabInactive.Render(level))
		}
	}
	scope := "all"
	if l.scope != allScopes {
		scope = l.scope
	}
	return "Level: " + strings.Join(parts, " ") + "  (h/→)   Scope: " +
		styles.StatValue.Render(scope) + "  (f)"
}

func (l Logs) renderLogs() string {
	logs := l.filtered()
	if len(logs) == 0 {
		return styles.Muted.Render("No logs")
	}

	start := l.scrollOffset
	end := min(start+l.visibleLines(), len(logs))

	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, l.formatLog(logs[i]))
	}

	header := styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(logs)))
	return header + "\n" + strings.Join(lines, "\n")
}

func (l Logs) formatLog(log db.RunLog) string {
	ts := log.Timestamp.Local().Format("15:04:05")

	scope := ""
	if log.Scope != "" {
		scope = fmt.Sprintf("[%s#%s] ", log.Scope, truncate(log.RunID, 8))
	}

	msg := log.Message
	if l.width > 30 {
		msg = truncate(msg, l.width-len(scope)-20)
	}

	return fmt.Sprintf("%s %s %s%s",
		styles.Muted.Render(ts),
		levelStyle(log.Level).Render(fmt.Sprintf("%-5s", log.Level)),
		styles.Muted.Render(scope),
		msg,
	)
}

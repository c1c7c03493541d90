package main

import (
	"fmt"
	"os"
	"time"

	"tui/db"
	"tui/styles"
	"tui/views"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
)

type tab int

const (
	tabDashboard tab = iota
	tabData
	tabLogs
)

type keyMap struct {
	Quit      key.Binding
	Dashboard key.Binding
	Data      key.Binding
	Logs      key.Binding
	Next      key.Binding
	Refresh   key.Binding
	Scrape    key.Binding
	Site      key.Binding
	Dedup     key.Binding
	Pause     key.Binding
	Resume    key.Binding
	URL       key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Dashboard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dash")),
	Data:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "listings")),
	Logs:      key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "logs")),
	Next:      key.NewBinding(key.WithKeys("tab")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Scrape:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scrape")),
	Site:      key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "scrape site")),
	Dedup:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dedup")),
	Pause:     key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "pause")),
	Resume:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "resume")),
	URL:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "url")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Dashboard, k.Data, k.Logs, k.Refresh, k.Scrape, k.Site, k.Dedup, k.Pause, k.Resume, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.URL}}
}

type model struct {
	db            *db.Client
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time
	help          help.Model

	dashboard views.Dashboard
	data      views.Data
	logs      views.Logs
}

type tickMsg time.Time
type logTickMsg time.Time

func initialModel(dbClient *db.Client, logPath, daemonUnit string) model {
	return model{
		db:        dbClient,
		activeTab: tabDashboard,
		help:      help.New(),
		dashboard: views.NewDashboard(dbClient, logPath, daemonUnit),
		data:      views.NewData(dbClient),
		logs:      views.NewLogs(dbClient),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.data.Init(),
		m.logs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

func (m *model) notify(text string) {
	m.notification = text
	m.notifyUntil = time.Now().Add(2 * time.Second)
}

// sendCommand queues a daemon command and reports the outcome in the status bar.
func (m *model) sendCommand(send func() error, done string) {
	if err := send(); err != nil {
		m.notify("Command failed: " + err.Error())
		return
	}
	m.notify(done)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Dashboard):
			m.activeTab = tabDashboard
			return m, nil
		case key.Matches(msg, keys.Data):
			m.activeTab = tabData
			return m, nil
		case key.Matches(msg, keys.Logs):
			m.activeTab = tabLogs
			return m, nil
		case key.Matches(msg, keys.Next):
			m.activeTab = (m.activeTab + 1) % 3
			return m, nil
		case key.Matches(msg, keys.Refresh):
			m.notify("Refreshed")
			return m, m.refreshActive()
		case key.Matches(msg, keys.Scrape):
			m.sendCommand(m.db.ScrapeNow, "Scrape command sent")
			return m, nil
		case key.Matches(msg, keys.Site):
			site := m.dashboard.SelectedSite()
			if site == "" {
				m.notify("No site to scrape")
				return m, nil
			}
			m.sendCommand(func() error { return m.db.ScrapeSite(site) }, "Scrape sent for "+site)
			return m, nil
		case key.Matches(msg, keys.Dedup):
			m.sendCommand(m.db.DedupNow, "Dedup pass queued")
			return m, nil
		case key.Matches(msg, keys.Pause):
			m.sendCommand(m.db.Pause, "Scraping paused")
			return m, nil
		case key.Matches(msg, keys.Resume):
			m.sendCommand(m.db.Resume, "Scraping resumed")
			return m, nil
		case key.Matches(msg, keys.URL):
			if url := m.data.GetSelectedURL(); url != "" {
				m.notify(url)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.data = m.data.SetSize(msg.Width, msg.Height-4)
		m.logs = m.logs.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.RefreshLog(), logTickCmd())
		if m.activeTab == tabLogs {
			cmds = append(cmds, m.logs.Refresh())
		}
	}

	// Keys go to the active tab only; data messages go to every view.
	if _, isKey := msg.(tea.KeyMsg); isKey {
		switch m.activeTab {
		case tabDashboard:
			next, cmd := m.dashboard.Update(msg)
			m.dashboard = next.(views.Dashboard)
			cmds = append(cmds, cmd)
		case tabData:
			next, cmd := m.data.Update(msg)
			m.data = next.(views.Data)
			cmds = append(cmds, cmd)
		case tabLogs:
			next, cmd := m.logs.Update(msg)
			m.logs = next.(views.Logs)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	nextDashboard, cmd1 := m.dashboard.Update(msg)
	m.dashboard = nextDashboard.(views.Dashboard)
	nextData, cmd2 := m.data.Update(msg)
	m.data = nextData.(views.Data)
	nextLogs, cmd3 := m.logs.Update(msg)
	m.logs = nextLogs.(views.Logs)
	cmds = append(cmds, cmd1, cmd2, cmd3)

	return m, tea.Batch(cmds...)
}

func (m model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabData:
		return m.data.Refresh()
	case tabLogs:
		return m.logs.Refresh()
	}
	return nil
}

func (m model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m model) renderTabs() string {
	tabNames := []string{"Dashboard", "Listings", "Logs"}
	var rendered []string
	for i, name := range tabNames {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m model) renderContent() string {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.View()
	case tabData:
		return m.data.View()
	case tabLogs:
		return m.logs.View()
	}
	return ""
}

func (m model) renderStatusBar() string {
	left := m.help.View(keys)
	right := ""
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	postgresURL := os.Getenv("DATABASE_URL")
	if postgresURL == "" {
		fmt.Fprintf(os.Stderr, "Error: DATABASE_URL environment variable is required\n")
		os.Exit(1)
	}

	dbClient, err := db.New(postgresURL, getEnv("DB_PATH", "scraper.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	p := tea.NewProgram(
		initialModel(dbClient, getEnv("LOG_PATH", "daemon.log"), os.Getenv("DAEMON_UNIT")),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

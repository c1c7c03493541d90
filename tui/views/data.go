package views

import (
	"fmt"
	"strings"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dataMsg struct {
	listings []db.CanonicalListing
	total    int
}

type sourcesMsg struct {
	canonicalID string
	sources     []db.SourceListing
}

// Data browses the canonical listing set written by the last dedup pass.
type Data struct {
	db            *db.Client
	width, height int
	listings      []db.CanonicalListing
	sources       []db.SourceListing
	selectedRow   int
	mergedOnly    bool
	dbPage        int
	dbPageSize    int
	total         int
}

func NewData(dbClient *db.Client) Data {
	return Data{db: dbClient, dbPageSize: 100}
}

func (d Data) Init() tea.Cmd {
	return d.Refresh()
}

func (d Data) Refresh() tea.Cmd {
	return func() tea.Msg {
		listings, _ := d.db.GetCanonicalListings(d.dbPageSize, d.dbPage*d.dbPageSize, d.mergedOnly)
		total, _ := d.db.GetCanonicalCount(d.mergedOnly)
		return dataMsg{listings, total}
	}
}

func (d Data) SetSize(w, h int) Data {
	d.width = w
	d.height = h
	return d
}

func (d Data) GetSelectedURL() string {
	if d.selectedRow < len(d.listings) {
		return d.listings[d.selectedRow].URL
	}
	return ""
}

func (d Data) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dataMsg:
		d.listings = msg.listings
		d.total = msg.total
		if d.selectedRow >= len(d.listings) {
			d.selectedRow = 0
		}
		return d, d.loadSelected()

	case sourcesMsg:
		if d.selectedRow < len(d.listings) && d.listings[d.selectedRow].ID == msg.canonicalID {
			d.sources = msg.sources
		}

	case tea.KeyMsg:
		if len(d.listings) == 0 && msg.String() != "a" {
			return d, nil
		}
		prev := d.selectedRow
		switch msg.String() {
		case "up", "k":
			d.selectedRow--
		case "down", "j":
			d.selectedRow++
		case "pgdown", "ctrl+d":
			d.selectedRow += 10
		case "pgup", "ctrl+u":
			d.selectedRow -= 10
		case "home", "g":
			d.selectedRow = 0
		case "end", "G":
			d.selectedRow = len(d.listings) - 1
		case "a":
			d.mergedOnly = !d.mergedOnly
			d.selectedRow = 0
			d.dbPage = 0
			return d, d.Refresh()
		case "[":
			if d.dbPage > 0 {
				d.dbPage--
				d.selectedRow = 0
				return d, d.Refresh()
			}
		case "]":
			if d.dbPage < d.totalPages()-1 {
				d.dbPage++
				d.selectedRow = 0
				return d, d.Refresh()
			}
		}
		d.selectedRow = clamp(d.selectedRow, 0, len(d.listings)-1)
		if d.selectedRow != prev {
			return d, d.loadSelected()
		}
	}
	return d, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func (d Data) loadSelected() tea.Cmd {
	if d.selectedRow >= len(d.listings) {
		return nil
	}
	id := d.listings[d.selectedRow].ID
	return func() tea.Msg {
		sources, _ := d.db.GetSourceListings(id)
		return sourcesMsg{id, sources}
	}
}

func (d Data) visibleRows() int {
	if d.height <= 0 {
		return 25
	}
	return max(d.height*55/100, 10)
}

func (d Data) totalPages() int {
	if d.dbPageSize == 0 || d.total == 0 {
		return 1
	}
	return (d.total + d.dbPageSize - 1) / d.dbPageSize
}

func (d Data) View() string {
	filter := "All"
	if d.mergedOnly {
		filter = "Merged only"
	}

	position := fmt.Sprintf("  %d/%d", d.dbPage*d.dbPageSize+d.selectedRow+1, d.total)
	if d.total == 0 {
		position = "  0/0"
	}
	pageInfo := fmt.Sprintf("  Page %d/%d", d.dbPage+1, d.totalPages())

	header := styles.Title.Render("Canonical Listings") +
		styles.StatValue.Render(position) +
		styles.StatLabel.Render(pageInfo) +
		"  " + styles.Muted.Render(fmt.Sprintf("[a] Filter: %s  [[ ]] Prev/Next page", filter))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		d.renderListingsTable(),
		"",
		d.renderBottomPanel(),
	)
}

func (d Data) renderListingsTable() string {
	header := fmt.Sprintf("%-32s %-16s %-14s %14s %4s %4s %8s %-5s %3s",
		"Title", "City", "Zone", "Price", "Hab", "Baño", "m²", "Op", "Src")
	rows := styles.TableHeader.Render(header) + "\n"

	if len(d.listings) == 0 {
		return rows + styles.Muted.Render("No canonical listings. Run a dedup pass with x.")
	}

	visible := d.visibleRows()
	offset := 0
	if d.selectedRow >= visible {
		offset = d.selectedRow - visible + 1
	}
	end := min(offset+visible, len(d.listings))

	for i := offset; i < end; i++ {
		l := d.listings[i]
		src := fmt.Sprintf("%d", l.SourceCount)
		if l.IsMerged {
			src = styles.MergedBadge.Render(fmt.Sprintf("%3s", src))
		} else {
			src = fmt.Sprintf("%3s", src)
		}

		row := fmt.Sprintf("%-32s %-16s %-14s %14s %4s %4s %8s %-5s ",
			truncate(l.Title, 32),
			truncate(l.City, 16),
			truncate(l.Zone, 14),
			formatPrice(l.Price, l.Currency),
			formatCount(l.Bedrooms),
			formatCount(l.Bathrooms),
			formatArea(l.Area),
			transactionLabel(l.TransactionType),
		)

		if i == d.selectedRow {
			rows += styles.TableSelected.Render(row) + src + "\n"
		} else {
			rows += row + src + "\n"
		}
	}

	if len(d.listings) > visible {
		rows += styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", offset+1, end, len(d.listings)))
	}
	return rows
}

func (d Data) renderBottomPanel() string {
	half := d.width/2 - 2
	sourcesBox := styles.CardBorder.Width(half).Render(
		styles.Title.Render("Sources") + "\n" + d.renderSources(),
	)
	detailsBox := styles.SiteCardBorder.Width(half).Render(
		styles.Title.Render("Details") + "\n" + d.renderDetails(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, sourcesBox, detailsBox)
}

func (d Data) renderSources() string {
	if len(d.sources) == 0 {
		return styles.Muted.Render("Select a listing")
	}

	header := fmt.Sprintf("%-12s %-12s %14s %-10s", "Source", "ID", "Price", "Seen")
	rows := styles.TableHeader.Render(header) + "\n"

	for _, s := range d.sources {
		rows += fmt.Sprintf("%-12s %-12s %14s %-10s\n",
			truncate(s.Source, 12),
			truncate(s.ExternalID, 12),
			formatPrice(s.Price, s.Currency),
			s.LastSeen.Local().Format("2006-01-02"),
		)
	}
	return rows
}

func (d Data) renderDetails() string {
	if d.selectedRow >= len(d.listings) {
		return styles.Muted.Render("Select a listing")
	}

	l := d.listings[d.selectedRow]
	width := d.width/2 - 6
	lines := []string{
		styles.StatLabel.Render("ID: ") + l.ID,
		styles.StatLabel.Render("Tipo: ") + l.PropertyType + " / " + transactionLabel(l.TransactionType),
		styles.StatLabel.Render("Actualizado: ") + relativeTime(l.UpdatedAt),
		"",
	}

	if l.Description != "" {
		desc := truncate(l.Description, 240)
		lines = append(lines, wrapText(desc, width)...)
		lines = append(lines, "")
	}

	lines = append(lines, styles.Muted.Render(truncate(l.URL, width)))
	return strings.Join(lines, "\n")
}

func formatPrice(amount float64, currency string) string {
	if amount <= 0 {
		return "—"
	}
	symbol := currency
	switch strings.ToUpper(currency) {
	case "USD":
		symbol = "US$"
	case "DOP":
		symbol = "RD$"
	}
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("%s%.2fM", symbol, amount/1_000_000)
	case amount >= 10_000:
		return fmt.Sprintf("%s%.0fK", symbol, amount/1_000)
	}
	return fmt.Sprintf("%s%.0f", symbol, amount)
}

func formatArea(area *float64) string {
	if area == nil || *area <= 0 {
		return "—"
	}
	return fmt.Sprintf("%.0f", *area)
}

func formatCount(n *int) string {
	if n == nil {
		return "—"
	}
	return fmt.Sprintf("%d", *n)
}

func transactionLabel(t string) string {
	switch t {
	case "sale":
		return "Venta"
	case "rent":
		return "Alq."
	}
	return "—"
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 40
	}
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if line != "" && len(line)+len(word)+1 > width {
			lines = append(lines, line)
			line = word
			continue
		}
		if line != "" {
			line += " "
		}
		line += word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/depforge/depforge/pkg/source"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// PackagePickerModel - Interactive search result selection
// =============================================================================

// PackagePickerModel is the bubbletea model for picking a package from
// search results.
type PackagePickerModel struct {
	Results  []source.Metadata
	Cursor   int
	Selected *source.Metadata
	Height   int
	Offset   int
}

// NewPackagePickerModel creates a picker over the given search results.
func NewPackagePickerModel(results []source.Metadata) PackagePickerModel {
	return PackagePickerModel{
		Results: results,
		Cursor:  0,
		Height:  15,
		Offset:  0,
	}
}

func (m PackagePickerModel) Init() tea.Cmd {
	return nil
}

func (m PackagePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Results)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			result := m.Results[m.Cursor]
			m.Selected = &result
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m PackagePickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Package"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ install  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Results) {
		end = len(m.Results)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Results[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		license := r.License
		if license == "" {
			license = "—"
		}

		desc := r.Description
		if len(desc) > 48 {
			desc = desc[:47] + "…"
		}

		rows = append(rows, []string{cursor, r.Name, r.Version, license, desc})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Package", "Version", "License", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}

			actualIdx := m.Offset + row
			if actualIdx >= len(m.Results) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if col == 3 || col == 4 {
				base = base.Foreground(colorDim)
			}
			if actualIdx == m.Cursor {
				if col != 3 && col != 4 {
					return base.Foreground(colorCyan).Bold(true)
				}
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Results))))

	return b.String()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/unklstewy/ads-trajectory/internal/db"
	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/config"
)

// trajectoryStore is the part of the trajectory repository the viewer reads.
type trajectoryStore interface {
	LatestRun(ctx context.Context) (db.Run, error)
	ListTrajectories(ctx context.Context, runID uuid.UUID, limit int) ([]db.StoredTrajectory, error)
}

// Seconds moved per cursor step in the detail view
const cursorStep = 60.0

type model struct {
	store   trajectoryStore
	limit   int
	refresh time.Duration

	run          db.Run
	trajectories []db.StoredTrajectory
	selected     int
	loaded       bool
	err          error

	// Detail view
	detail  bool
	current *analysis.SmoothedTrajectory
	cursor  float64 // seconds after start

	width  int
	height int
}

type loadedMsg struct {
	run          db.Run
	trajectories []db.StoredTrajectory
	err          error
}

type tickMsg time.Time

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// load reads the latest finished run and its trajectories.
func (m model) load() tea.Cmd {
	store, limit := m.store, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := store.LatestRun(ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		trajectories, err := store.ListTrajectories(ctx, run.ID, limit)
		return loadedMsg{run: run, trajectories: trajectories, err: err}
	}
}

func (m model) Init() tea.Cmd {
	if m.refresh > 0 {
		return tea.Batch(m.load(), tick(m.refresh))
	}
	return m.load()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case loadedMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		// Keep the selection on the same flight across reloads
		var selectedID uuid.UUID
		if m.selected < len(m.trajectories) {
			selectedID = m.trajectories[m.selected].ID
		}
		m.run = msg.run
		m.trajectories = msg.trajectories
		m.selected = 0
		for i, t := range m.trajectories {
			if t.ID == selectedID {
				m.selected = i
				break
			}
		}
		if m.detail && (len(m.trajectories) == 0 || m.trajectories[m.selected].ID != selectedID) {
			m.detail = false
			m.current = nil
		}

	case tickMsg:
		return m, tea.Batch(m.load(), tick(m.refresh))

	case tea.KeyMsg:
		// Clear error on any keypress (but don't quit)
		if m.err != nil && msg.String() != "q" && msg.String() != "ctrl+c" {
			m.err = nil
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.load()
		case "esc", "backspace":
			m.detail = false
			m.current = nil
		case "up", "k":
			if !m.detail && m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if !m.detail && m.selected < len(m.trajectories)-1 {
				m.selected++
			}
		case "enter", " ":
			if !m.detail && m.selected < len(m.trajectories) {
				traj, err := m.trajectories[m.selected].Trajectory()
				if err != nil {
					m.err = err
					return m, nil
				}
				m.detail = true
				m.current = traj
				m.cursor = 0
			}
		case "left", "h":
			if m.detail {
				m.cursor = max(m.cursor-cursorStep, 0)
			}
		case "right", "l":
			if m.detail && m.current != nil {
				m.cursor = min(m.cursor+cursorStep, m.current.Duration().Seconds())
			}
		case "home":
			m.cursor = 0
		case "end":
			if m.current != nil {
				m.cursor = m.current.Duration().Seconds()
			}
		}
	}

	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	title := "ADS-B TRAJECTORY VIEWER"
	if m.detail && m.selected < len(m.trajectories) {
		t := m.trajectories[m.selected]
		title = fmt.Sprintf("TRAJECTORY %s (%s)", t.FlightID, t.Source)
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		msg := fmt.Sprintf("Error: %v", m.err)
		if errors.Is(m.err, db.ErrNoRuns) {
			msg = "No finished analysis runs yet. Run trajectory-processor first."
		}
		s.WriteString(errStyle.Render(msg))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("Press any key to continue, R to reload, Q to quit"))
		return s.String()
	}

	if !m.loaded {
		s.WriteString(helpStyle.Render("Loading latest run..."))
		return s.String()
	}

	if m.detail && m.current != nil {
		s.WriteString(renderDetail(m.trajectories[m.selected], m.current, m.cursor))
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("←/→: Move cursor  HOME/END: Start/End  ESC: Back  R: Reload  Q: Quit"))
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(renderRun(m.run))
	s.WriteString("\n")
	s.WriteString(renderList(m.trajectories, m.selected, m.listRows()))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: Select  ENTER: Details  R: Reload  Q: Quit"))
	s.WriteString("\n")
	return s.String()
}

// listRows is the number of trajectories shown at once.
func (m model) listRows() int {
	if m.height <= 0 {
		return 15
	}
	return max(m.height-10, 5)
}

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	limit := flag.Int("limit", 500, "Maximum number of trajectories to load (0 = all)")
	refresh := flag.Duration("refresh", 0, "Reload the latest run at this interval (0 = manual)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	m := model{
		store:   db.NewTrajectoryRepository(database),
		limit:   *limit,
		refresh: *refresh,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-trajectory/internal/db"
	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/tracking"
)

// Path plot dimensions
const (
	plotWidth  = 60
	plotHeight = 20
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func renderRun(run db.Run) string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	s.WriteString(headerStyle.Render("Run " + run.ID.String()))
	s.WriteString("\n")

	finished := "running"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Local().Format("2006-01-02 15:04:05")
	}
	s.WriteString(fmt.Sprintf("  Finished: %s  Status: %s\n", finished, run.Status))
	s.WriteString(fmt.Sprintf("  Flights: %d  Analysed: %d  Rejected: %d  Failed: %d\n",
		run.Summary.Total, run.Summary.Analysed, run.Summary.Rejected, run.Summary.Failed))
	s.WriteString(fmt.Sprintf("  Tolerance: %.2f NM  Max speed: %.0f kt  Smoothing: %d/%d\n",
		run.Settings.AcrossTrackToleranceNM, run.Settings.MaxSpeedKnots,
		run.Settings.SmoothingWindow, run.Settings.SmoothingIterations))
	return s.String()
}

// renderList renders the trajectory table, scrolled to keep selected visible.
func renderList(trajectories []db.StoredTrajectory, selected, rows int) string {
	var list strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	list.WriteString(headerStyle.Render("Trajectories:"))
	list.WriteString(fmt.Sprintf(" (%d)", len(trajectories)))
	list.WriteString("\n\n")

	if len(trajectories) == 0 {
		list.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("  No trajectories in this run"))
		return list.String()
	}

	list.WriteString(fmt.Sprintf("  %-10s %-6s %5s %4s %8s %7s %7s %6s  %s\n",
		"FLIGHT", "SOURCE", "POS", "WPT", "PATH NM", "TIME", "XTK NM", "SD s", "PROFILE"))

	start, end := visibleRange(len(trajectories), selected, rows)
	for i := start; i < end; i++ {
		t := trajectories[i]
		m := t.Metrics

		prefix := "  "
		if i == selected {
			prefix = "→ "
		}

		// Quality indicator
		sdStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
		if m.TimeStdDev > 2 {
			sdStyle = sdStyle.Foreground(lipgloss.Color("226"))
		}
		if m.TimeStdDev > 10 || m.Unordered {
			sdStyle = sdStyle.Foreground(lipgloss.Color("196"))
		}

		line := fmt.Sprintf("%s%-10s %-6s %5d %4d %8.1f %7s %7.3f ",
			prefix, t.FlightID, t.Source, m.Positions, m.Waypoints, m.PathLengthNM,
			formatElapsed(m.DurationSeconds), m.CrossTrackRMS)
		line += sdStyle.Render(fmt.Sprintf("%6.2f", m.TimeStdDev))
		line += "  " + m.AltitudeProfile.String()

		if i == selected {
			line = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Render(line)
		}

		list.WriteString(line)
		list.WriteString("\n")
	}

	return list.String()
}

// visibleRange returns the window of rows around selected.
func visibleRange(n, selected, rows int) (int, int) {
	if rows <= 0 || n <= rows {
		return 0, n
	}
	start := max(selected-rows/2, 0)
	end := start + rows
	if end > n {
		end = n
		start = n - rows
	}
	return start, end
}

// renderDetail renders the metrics, path plot and profiles of one trajectory.
func renderDetail(t db.StoredTrajectory, traj *analysis.SmoothedTrajectory, cursor float64) string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	m := t.Metrics

	s.WriteString(fmt.Sprintf("Start: %s UTC  Duration: %s  Path: %.1f NM  Max speed: %.0f kt\n",
		t.StartTime.UTC().Format("2006-01-02 15:04:05"), formatElapsed(m.DurationSeconds),
		m.PathLengthNM, m.MaxSpeedKnots))
	s.WriteString(fmt.Sprintf("Positions: %d (%d invalid, %d duplicate)  Period: %.1fs  Profile: %s\n",
		m.Positions, m.InvalidPositions, m.DuplicatePositions, m.PositionPeriod, m.AltitudeProfile))
	s.WriteString(fmt.Sprintf("Cross-track RMS: %.3f NM  Time offset: %.2fs  SD: %.2fs\n",
		m.CrossTrackRMS, m.TimeOffset, m.TimeStdDev))
	if m.Unordered {
		s.WriteString(warnStyle.Render("⚠ Positions are out of order along the path"))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	pos := traj.PositionAt(cursor)
	distance := tracking.DistanceAtTime(t.Distances, t.Times, cursor)

	plot := plotPath(t.Waypoints, &pos, plotWidth, plotHeight)
	waypoints := renderWaypoints(t.Waypoints)

	plotLines := strings.Split(plot, "\n")
	wpLines := strings.Split(waypoints, "\n")
	for i := range max(len(plotLines), len(wpLines)) {
		if i < len(plotLines) {
			s.WriteString(plotLines[i])
		} else {
			s.WriteString(strings.Repeat(" ", plotWidth+2))
		}
		s.WriteString("  ")
		if i < len(wpLines) {
			s.WriteString(wpLines[i])
		}
		s.WriteString("\n")
	}

	s.WriteString(headerStyle.Render("Cursor:"))
	s.WriteString(fmt.Sprintf(" T+%s  %.4f, %.4f  %.1f NM along path\n",
		formatElapsed(cursor), pos.Latitude, pos.Longitude, distance))

	s.WriteString(headerStyle.Render("Speed:   "))
	s.WriteString(" " + sparkline(t.Speeds, plotWidth))
	s.WriteString(fmt.Sprintf(" %.0f kt\n", maxOf(t.Speeds)))
	s.WriteString(headerStyle.Render("Altitude:"))
	s.WriteString(" " + sparkline(t.Altitudes, plotWidth))
	s.WriteString(fmt.Sprintf(" %.0f ft\n", maxOf(t.Altitudes)))

	return s.String()
}

// renderWaypoints lists waypoints with the turn at each.
func renderWaypoints(waypoints []coordinates.Geographic) string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	s.WriteString(headerStyle.Render("Waypoints:"))
	s.WriteString(fmt.Sprintf(" (%d)\n", len(waypoints)))

	// Show at most plotHeight rows
	for i, w := range waypoints {
		if i == plotHeight-1 && len(waypoints) > plotHeight {
			s.WriteString(fmt.Sprintf("  ... %d more\n", len(waypoints)-i))
			break
		}
		turn := "      "
		if i > 0 && i < len(waypoints)-1 {
			turn = fmt.Sprintf("%+5.0f°", tracking.TurnAngle(waypoints[i-1], w, waypoints[i+1]))
		}
		s.WriteString(fmt.Sprintf("  %2d %8.3f %9.3f %s\n", i, w.Latitude, w.Longitude, turn))
	}
	return s.String()
}

// plotPath draws the path on a width x height grid using an equirectangular
// projection scaled to the waypoint bounds.
// A nil cursor is not drawn.
func plotPath(waypoints []coordinates.Geographic, cursor *coordinates.Geographic, width, height int) string {
	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	if len(waypoints) > 0 {
		minLat, maxLat := waypoints[0].Latitude, waypoints[0].Latitude
		minLon, maxLon := waypoints[0].Longitude, waypoints[0].Longitude
		for _, w := range waypoints[1:] {
			minLat = math.Min(minLat, w.Latitude)
			maxLat = math.Max(maxLat, w.Latitude)
			minLon = math.Min(minLon, w.Longitude)
			maxLon = math.Max(maxLon, w.Longitude)
		}

		// Shrink longitude by latitude so the shape is not stretched
		scaleX := math.Cos((minLat + maxLat) / 2 * math.Pi / 180)
		spanX := math.Max((maxLon-minLon)*scaleX, 1e-6)
		spanY := math.Max(maxLat-minLat, 1e-6)
		// Terminal characters are about twice as tall as wide
		span := math.Max(spanX/float64(width-1), spanY/float64(height-1)/2)

		toScreen := func(p coordinates.Geographic) (int, int) {
			x := int(math.Round((p.Longitude - minLon) * scaleX / span))
			y := height - 1 - int(math.Round((p.Latitude-minLat)/(2*span)))
			return x, y
		}
		set := func(p coordinates.Geographic, r rune) {
			x, y := toScreen(p)
			if x >= 0 && x < width && y >= 0 && y < height {
				grid[y][x] = r
			}
		}

		// Trace each leg by interpolation
		for i := 1; i < len(waypoints); i++ {
			steps := 2 * (width + height)
			for j := range steps {
				set(tracking.InterpolateGreatCircle(waypoints[i-1], waypoints[i], float64(j)/float64(steps)), '·')
			}
		}
		for _, w := range waypoints {
			set(w, '◆')
		}
		set(waypoints[0], 'S')
		set(waypoints[len(waypoints)-1], 'E')
		if cursor != nil {
			set(*cursor, '✈')
		}
	}

	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	var s strings.Builder
	s.WriteString(borderStyle.Render("┌" + strings.Repeat("─", width) + "┐"))
	s.WriteString("\n")
	for _, row := range grid {
		s.WriteString(borderStyle.Render("│"))
		for _, r := range row {
			switch r {
			case '✈':
				s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true).Render(string(r)))
			case '◆', 'S', 'E':
				s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render(string(r)))
			case '·':
				s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Render(string(r)))
			default:
				s.WriteRune(r)
			}
		}
		s.WriteString(borderStyle.Render("│"))
		s.WriteString("\n")
	}
	s.WriteString(borderStyle.Render("└" + strings.Repeat("─", width) + "┘"))
	return s.String()
}

// sparkline resamples values to at most width buckets, each showing its
// maximum.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	n := min(len(values), width)
	buckets := make([]float64, n)
	for i := range buckets {
		lo := i * len(values) / n
		hi := max((i+1)*len(values)/n, lo+1)
		buckets[i] = maxOf(values[lo:hi])
	}

	lo, hi := buckets[0], buckets[0]
	for _, v := range buckets {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var s strings.Builder
	for _, v := range buckets {
		level := 0
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		s.WriteRune(sparkRunes[level])
	}
	return s.String()
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

// formatElapsed formats seconds as h:mm:ss.
func formatElapsed(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

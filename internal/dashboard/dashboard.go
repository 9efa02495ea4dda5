// Package dashboard renders a live terminal view of a running load test.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/vuload/internal/metrics"
)

const historyLength = 100

// RunInfo holds run parameters for display.
type RunInfo struct {
	Workflow    string        // Workflow name or path
	Users       int           // Virtual users launched
	Mode        metrics.Mode  // headless or headed
	SpawnRate   float64       // Users started per second (0 = all at once)
	Retries     int           // Attempts per retryable step
	StepTimeout time.Duration // Per-step timeout
	ConfigFile  string        // Path to config file if used
}

// Dashboard renders a live terminal UI fed by a metrics.Collector.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	usersGauge     *widgets.Gauge
	recentList     *widgets.List
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	info           RunInfo
}

// New creates a new Dashboard. shutdownFunc runs when the user presses q or
// Ctrl+C inside the dashboard.
func New(collector *metrics.Collector, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historyLength),
		info:           info,
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean user time (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "User Time"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "User Time Stats"
	d.latencyPara.Text = "Mean: 0ms\nP50:  0ms\nP90:  0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.usersGauge = widgets.NewGauge()
	d.usersGauge.Title = "Users Finished"
	d.usersGauge.BarColor = ui.ColorBlue
	d.usersGauge.BorderStyle.Fg = ui.ColorCyan
	d.usersGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.recentList = widgets.NewList()
	d.recentList.Title = "Recent Users"
	d.recentList.Rows = []string{"Awaiting data"}
	d.recentList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.recentList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Recent Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Load Test"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.2,
			ui.NewCol(0.5, d.usersGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.3,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.5, d.recentList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.collector.Snapshot()

	if p.Completed > 0 {
		d.latencyHistory = append(d.latencyHistory, p.MeanMs)
		if len(d.latencyHistory) > historyLength {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf("User Time | Mean: %.2fms | P90: %.2fms", p.MeanMs, p.P90Ms)
	}

	d.usersGauge.Percent = completionPercent(p)
	d.usersGauge.Label = fmt.Sprintf("%d / %d", p.Completed, p.Expected)

	d.summaryPara.Text = fmt.Sprintf("%s\n%s\nElapsed: %s | Success Rate: %.1f%%",
		d.info.Workflow, formatRunParams(d.info), p.Elapsed.Round(time.Second), successRate(p))

	d.metricsPara.Text = fmt.Sprintf(
		"Finished:          %d\nSuccessful:        %d\nFailed:            %d\nRetries:           %d\nUsers/sec:         %.2f",
		p.Completed, p.Successes, p.Failures, p.Retries, usersPerSecond(p))

	d.latencyPara.Text = fmt.Sprintf("Mean: %.2fms\nP50:  %.2fms\nP90:  %.2fms", p.MeanMs, p.P50Ms, p.P90Ms)

	d.recentList.Rows = formatRecentRows(p.Recent)
	d.errorList.Rows = formatErrorRows(p.Recent)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func completionPercent(p metrics.Progress) int {
	if p.Expected <= 0 {
		return 0
	}
	pct := p.Completed * 100 / p.Expected
	if pct > 100 {
		pct = 100
	}
	return pct
}

func successRate(p metrics.Progress) float64 {
	if p.Completed == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Completed) * 100
}

func usersPerSecond(p metrics.Progress) float64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.Completed) / secs
}

// formatRecentRows lists the latest finished users, newest first.
func formatRecentRows(recent []metrics.UserResult) []string {
	if len(recent) == 0 {
		return []string{"Awaiting data"}
	}
	rows := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		r := recent[i]
		status := "[OK](fg:green)"
		if !r.Success {
			status = "[FAIL](fg:red)"
		}
		rows = append(rows, fmt.Sprintf("user %-4d %s %8.1fms retries %d", r.User, status, r.TotalTime, r.RetryCount))
	}
	return rows
}

func formatErrorRows(recent []metrics.UserResult) []string {
	var rows []string
	for i := len(recent) - 1; i >= 0; i-- {
		if r := recent[i]; !r.Success {
			rows = append(rows, fmt.Sprintf("[user %d](fg:red) %s", r.User, r.Error))
		}
	}
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	return rows
}

func formatRunParams(info RunInfo) string {
	var parts []string
	if info.Users > 0 {
		parts = append(parts, fmt.Sprintf("Users: %d", info.Users))
	}
	if info.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", info.Mode))
	}
	if info.SpawnRate > 0 {
		parts = append(parts, fmt.Sprintf("Spawn: %g/s", info.SpawnRate))
	} else {
		parts = append(parts, "Spawn: all at once")
	}
	if info.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", info.Retries))
	}
	if info.StepTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Step timeout: %s", info.StepTimeout))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}
	return strings.Join(parts, " | ")
}

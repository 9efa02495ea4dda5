package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/vuload/internal/compare"
	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// HTMLReportData contains all data needed for the run report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           metrics.RunReport
	Failures         []metrics.UserResult
	StepNames        []string
	ThresholdResults []threshold.Result
	ThresholdSummary *ThresholdSummary
}

// ThresholdSummary counts threshold outcomes.
type ThresholdSummary struct {
	Total  int
	Passed int
	Failed int
}

// SummaryHTMLData contains all data needed for the history summary template.
type SummaryHTMLData struct {
	GeneratedAt string
	Summary     history.Summary
	Comparison  compare.Result
	Metrics     []metrics.Metric
	SeriesJSON  template.JS
}

// chartSeries is the shape embedded for the trend charts.
type chartSeries struct {
	Name   string    `json:"name"`
	Times  []int64   `json:"times"`
	Values []float64 `json:"values"`
}

// chartedKinds are the trend series drawn on the summary page.
var chartedKinds = []metrics.Kind{
	metrics.KindTotalTime,
	metrics.KindSuccessRate,
	metrics.KindP90ResponseTime,
}

var funcs = template.FuncMap{
	"formatMillis":  formatMillis,
	"formatFloat":   func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"formatPercent": history.FormatPercent,
	"formatValue": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return formatValue(*v)
	},
	"stepTime": func(t map[string]float64, name string) string {
		v, ok := t[name]
		if !ok {
			return "-"
		}
		return formatMillis(v)
	},
}

var (
	reportTmpl  = template.Must(template.New("report").Funcs(funcs).Parse(htmlStyle + reportTemplate))
	summaryTmpl = template.Must(template.New("summary").Funcs(funcs).Parse(htmlStyle + summaryTemplate))
)

// GenerateHTMLReport writes a standalone HTML page for one run.
func GenerateHTMLReport(w io.Writer, report metrics.RunReport, thresholdResults []threshold.Result) error {
	var summary *ThresholdSummary
	if len(thresholdResults) > 0 {
		summary = &ThresholdSummary{Total: len(thresholdResults)}
		for _, tr := range thresholdResults {
			if tr.Pass {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	var steps []string
	if report.Statistics != nil {
		steps = metrics.StepTiming(report.Statistics.AverageStepTimes).Names()
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           report,
		Failures:         report.Failures(),
		StepNames:        steps,
		ThresholdResults: thresholdResults,
		ThresholdSummary: summary,
	}
	if err := reportTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// GenerateSummaryHTML writes a standalone HTML page with the history summary,
// trend charts and the load level comparison of doc.
func GenerateSummaryHTML(w io.Writer, doc history.Document) error {
	var series []chartSeries
	for _, k := range chartedKinds {
		points := doc.Trends[metrics.Of(k)]
		if len(points) == 0 {
			continue
		}
		s := chartSeries{Name: k.String()}
		for _, p := range points {
			s.Times = append(s.Times, p.Timestamp.Unix())
			s.Values = append(s.Values, p.Value)
		}
		series = append(series, s)
	}
	seriesJSON, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("failed to marshal trend series: %w", err)
	}

	cmp := compare.Compare(doc)
	data := SummaryHTMLData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Summary:     history.Summarize(doc),
		Comparison:  cmp,
		Metrics:     cmp.MetricNames(),
		SeriesJSON:  template.JS(seriesJSON),
	}
	if err := summaryTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlStyle = `{{define "style"}}
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart { width: 100%; height: 300px; margin-bottom: 30px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
        }
        tr:hover { background: #f8f9fa; }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .no-data { text-align: center; padding: 40px; color: #6c757d; font-style: italic; }
    </style>
{{end}}`

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>vuload Run {{.Report.ID}}</title>
    {{template "style"}}
</head>
<body>
    <div class="container">
        <header>
            <h1>vuload Load Test Report</h1>
            <div class="meta">Run {{.Report.ID}}{{if .Report.Workflow}} | Workflow: {{.Report.Workflow}}{{end}} | Mode: {{.Report.Mode}}</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatMillis .Report.TotalTime}}</div>
        </header>
        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Users</h3>
                    <div class="value">{{.Report.NumUsers}}</div>
                </div>
                <div class="card success">
                    <h3>Success Rate</h3>
                    <div class="value">{{formatFloat .Report.SuccessRate}}%</div>
                    <div class="subvalue">{{.Report.Successes}} succeeded</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{len .Failures}}</div>
                    <div class="subvalue">{{.Report.Metrics.RetryCount}} retries</div>
                </div>
                <div class="card">
                    <h3>Users/sec</h3>
                    <div class="value">{{formatFloat .Report.Metrics.UsersPerSecond}}</div>
                </div>
            </div>

            <div class="section">
                <h2>Response Time</h2>
                <table>
                    <thead><tr><th>Min</th><th>Mean</th><th>P50</th><th>P90</th><th>P99</th><th>Max</th></tr></thead>
                    <tbody><tr>
                        <td>{{formatMillis .Report.Metrics.MinResponseTime}}</td>
                        <td>{{formatMillis .Report.Metrics.AverageResponseTime}}</td>
                        <td>{{formatMillis .Report.Metrics.P50ResponseTime}}</td>
                        <td>{{formatMillis .Report.Metrics.P90ResponseTime}}</td>
                        <td>{{formatMillis .Report.Metrics.P99ResponseTime}}</td>
                        <td>{{formatMillis .Report.Metrics.MaxResponseTime}}</td>
                    </tr></tbody>
                </table>
            </div>

            <div class="section">
                <h2>Users</h2>
                <table>
                    <thead>
                        <tr>
                            <th>User</th><th>Status</th><th>Total</th>
                            {{range .StepNames}}<th>{{.}}</th>{{end}}
                            <th>Retries</th><th>Error</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{$steps := .StepNames}}
                        {{range .Report.Results}}
                        <tr>
                            <td>{{.User}}</td>
                            <td>{{if .Success}}<span class="badge badge-success">OK</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                            <td>{{formatMillis .TotalTime}}</td>
                            {{$t := .Timings}}{{range $steps}}<td>{{stepTime $t .}}</td>{{end}}
                            <td>{{.RetryCount}}</td>
                            <td>{{.Error}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead><tr><th>Threshold</th><th>Actual</th><th>Status</th></tr></thead>
                    <tbody>
                        {{range .ThresholdResults}}
                        <tr>
                            <td>{{.Expr}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`

const summaryTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>vuload Performance History</title>
    {{template "style"}}
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>vuload Performance History</h1>
            <div class="meta">Generated: {{.GeneratedAt}} | Runs: {{.Summary.TotalRuns}}</div>
        </header>
        <div class="content">
            {{with .Summary.Latest}}
            <div class="grid">
                <div class="card"><h3>Latest Run</h3><div class="value">{{.NumUsers}} users</div><div class="subvalue">{{.ID}}</div></div>
                <div class="card success"><h3>Success Rate</h3><div class="value">{{formatFloat .SuccessRate}}%</div></div>
                <div class="card"><h3>P90 Response</h3><div class="value">{{formatMillis .Metrics.P90ResponseTime}}</div></div>
            </div>
            {{end}}

            <div class="section">
                <h2>Trends</h2>
                <div id="charts"></div>
                {{if .Summary.Trends}}
                <table>
                    <thead><tr><th>Metric</th><th>Previous</th><th>Latest</th><th>Change</th><th>Trend</th></tr></thead>
                    <tbody>
                        {{range .Summary.Trends}}
                        <tr>
                            <td>{{.Metric}}</td>
                            <td>{{formatFloat .Previous}}</td>
                            <td>{{formatFloat .Latest}}</td>
                            <td>{{.Display}}</td>
                            <td>{{.Direction}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <div class="no-data">Not enough runs to compute trends</div>
                {{end}}
            </div>

            <div class="section">
                <h2>Load Level Comparison</h2>
                {{if .Comparison.UserCounts}}
                {{$cmp := .Comparison}}
                <table>
                    <thead>
                        <tr><th>Metric</th>{{range $cmp.UserCounts}}<th>{{.}} users</th>{{end}}<th>Mean</th><th>Std Dev</th></tr>
                    </thead>
                    <tbody>
                        {{range .Metrics}}
                        <tr>
                            <td>{{.}}</td>
                            {{range index $cmp.Metrics .}}<td>{{formatValue .}}</td>{{end}}
                            {{with index $cmp.Statistics .}}<td>{{formatFloat .Mean}}</td><td>{{formatFloat .StdDev}}</td>{{end}}
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <div class="no-data">No runs recorded</div>
                {{end}}
            </div>

            {{if .Summary.CommonErrors}}
            <div class="section">
                <h2>Common Errors</h2>
                <table>
                    <thead><tr><th>Count</th><th>Error</th></tr></thead>
                    <tbody>
                        {{range .Summary.CommonErrors}}<tr><td>{{.Count}}</td><td>{{.Error}}</td></tr>{{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
    <script>
        const series = {{.SeriesJSON}} || [];
        const root = document.getElementById('charts');
        series.forEach(s => {
            const el = document.createElement('div');
            el.className = 'chart';
            root.appendChild(el);
            new uPlot({
                title: s.name,
                width: el.clientWidth || 800,
                height: 280,
                series: [{}, {label: s.name, stroke: '#0f766e', width: 2}],
            }, [s.times, s.values], el);
        });
    </script>
</body>
</html>
`

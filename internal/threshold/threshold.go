// Package threshold evaluates report-only assertions such as
// "errorRate < 5" or "step:checkout <= 2000" against a finished run.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric   metrics.Metric
	Operator string  // one of <, <=, >, >=, ==
	Value    float64 // the threshold value to compare against
	Raw      string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Expr      string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Evaluator evaluates thresholds against run reports.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against report. A metric the run carries
// no data for fails its threshold.
func (e *Evaluator) Evaluate(report metrics.RunReport) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	observed := metrics.Observe(report)
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, observed))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, observed map[metrics.Metric]float64) Result {
	actual, ok := observed[t.Metric]
	if !ok {
		return Result{
			Threshold: t,
			Expr:      t.Raw,
			Message:   fmt.Sprintf("✗ %s: no data for %s in this run", t.Raw, t.Metric.Name()),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var pattern = regexp.MustCompile(`^([A-Za-z0-9_]+(?::[^<>=]+?)?)\s*(<=|>=|==|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?)$`)

// Parse parses a threshold string of the form "<metric> <operator> <value>".
// Metric names are those of the history trends, e.g. errorRate,
// p99ResponseTime, usersPerSecond or step:<timing name>.
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected: metric operator value, e.g. 'errorRate < 5')", s)
	}

	metric, err := metrics.ParseMetric(matches[1])
	if err != nil {
		return Threshold{}, err
	}
	value, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[3], err)
	}

	return Threshold{
		Metric:   metric,
		Operator: matches[2],
		Value:    value,
		Raw:      s,
	}, nil
}

// ParseMultiple parses multiple threshold strings, reporting every bad one.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

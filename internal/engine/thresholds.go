package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/genload/internal/metrics"
)

// Thresholds are pass/fail criteria evaluated against the final snapshot.
// Each entry is an expression "<stat> <op> <value>", e.g. "p95 < 500ms" or
// "rate > 0.99".
type Thresholds struct {
	// Checks supports "rate".
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`
	// HTTPReqDuration supports min, max, avg, med, p50, p90, p95, p99.
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`
	// HTTPReqFailed supports "rate".
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`
	// HTTPReqs supports "count" and "rate".
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Empty reports whether no threshold is configured.
func (t Thresholds) Empty() bool {
	return len(t.Checks) == 0 && len(t.HTTPReqDuration) == 0 &&
		len(t.HTTPReqFailed) == 0 && len(t.HTTPReqs) == 0
}

// Validate parses every expression without evaluating it.
func (t Thresholds) Validate() error {
	groups := []struct {
		metric string
		exprs  []string
		stats  []string
	}{
		{"checks", t.Checks, []string{"rate"}},
		{"http_req_duration", t.HTTPReqDuration, []string{"min", "max", "avg", "med", "p50", "p90", "p95", "p99"}},
		{"http_req_failed", t.HTTPReqFailed, []string{"rate"}},
		{"http_reqs", t.HTTPReqs, []string{"count", "rate"}},
	}

	for _, g := range groups {
		for _, expr := range g.exprs {
			stat, op, value, err := parseThresholdExpression(expr)
			if err != nil {
				return fmt.Errorf("%s: %w", g.metric, err)
			}
			if !contains(g.stats, stat) {
				return fmt.Errorf("%s: unsupported stat %q in %q", g.metric, stat, expr)
			}
			if !validOp(op) {
				return fmt.Errorf("%s: unknown operator %q in %q", g.metric, op, expr)
			}
			if g.metric == "http_req_duration" {
				_, err = time.ParseDuration(value)
			} else {
				_, err = strconv.ParseFloat(value, 64)
			}
			if err != nil {
				return fmt.Errorf("%s: invalid value in %q: %w", g.metric, expr, err)
			}
		}
	}
	return nil
}

// ThresholdResult is the outcome of one threshold expression.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Evaluate checks every threshold against snap.
func (t Thresholds) Evaluate(snap *metrics.Snapshot) []ThresholdResult {
	var results []ThresholdResult

	for _, expr := range t.Checks {
		results = append(results, evaluateRate("checks", expr, snap.CheckRate))
	}
	for _, expr := range t.HTTPReqDuration {
		results = append(results, evaluateDuration(expr, snap))
	}
	for _, expr := range t.HTTPReqFailed {
		results = append(results, evaluateRate("http_req_failed", expr, snap.ErrorRate))
	}
	for _, expr := range t.HTTPReqs {
		results = append(results, evaluateRequests(expr, snap))
	}
	return results
}

func evaluateDuration(expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_req_duration", Expression: expr}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	var actual time.Duration
	switch stat {
	case "min":
		actual = snap.Latency.Min
	case "max":
		actual = snap.Latency.Max
	case "avg":
		actual = snap.Latency.Mean
	case "med", "p50":
		actual = snap.Latency.P50
	case "p90":
		actual = snap.Latency.P90
	case "p95":
		actual = snap.Latency.P95
	case "p99":
		actual = snap.Latency.P99
	default:
		result.Message = fmt.Sprintf("unknown stat: %s", stat)
		return result
	}

	threshold, err := time.ParseDuration(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actual.String()
	result.Passed = compareValues(float64(actual), op, float64(threshold))
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", stat, actual, op, threshold)
	}
	return result
}

func evaluateRate(metric, expr string, actual float64) ThresholdResult {
	result := ThresholdResult{Metric: metric, Expression: expr}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}
	if stat != "rate" {
		result.Message = fmt.Sprintf("%s only supports 'rate', got: %s", metric, stat)
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", actual)
	result.Passed = compareValues(actual, op, threshold)
	if !result.Passed {
		result.Message = fmt.Sprintf("rate is %.4f, threshold: %s %.4f", actual, op, threshold)
	}
	return result
}

func evaluateRequests(expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_reqs", Expression: expr}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	threshold, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actual float64
	switch stat {
	case "count":
		actual = float64(snap.TotalRequests)
	case "rate":
		actual = snap.RPS
	default:
		result.Message = fmt.Sprintf("http_reqs only supports 'count' or 'rate', got: %s", stat)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compareValues(actual, op, threshold)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", stat, actual, op, threshold)
	}
	return result
}

var thresholdExpr = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// parseThresholdExpression splits "p95 < 500ms" into stat, operator and value.
func parseThresholdExpression(expr string) (stat, op, value string, err error) {
	m := thresholdExpr.FindStringSubmatch(strings.TrimSpace(expr))
	if len(m) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}
	return m[1], m[2], strings.TrimSpace(m[3]), nil
}

func validOp(op string) bool {
	switch op {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
		return true
	}
	return false
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

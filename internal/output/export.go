package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/genload/internal/engine"
)

// Format is a machine-readable result encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatJUnit reports checks and thresholds as JUnit XML for CI.
	FormatJUnit Format = "junit"
)

// ParseFormat accepts json, yaml/yml and junit/xml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "junit", "xml":
		return FormatJUnit, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use json, yaml or junit)", s)
	}
}

// FormatForPath infers the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatJSON
	}
	return f
}

// WriteResult encodes r to w.
func WriteResult(w io.Writer, r *engine.Result, f Format) error {
	if r == nil {
		return fmt.Errorf("result cannot be nil")
	}

	var (
		data []byte
		err  error
	)
	switch f {
	case FormatJSON, "":
		data, err = json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		data, err = resultYAML(r)
	case FormatJUnit:
		data, err = resultJUnit(r)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result as %s: %w", f, err)
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// WriteResultFile writes r to path, creating parent directories.
func WriteResultFile(path string, r *engine.Result, f Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := WriteResult(file, r, f); err != nil {
		return err
	}
	return file.Close()
}

// resultYAML reuses the JSON field names and order.
func resultYAML(r *engine.Result) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)
	return yaml.Marshal(&doc)
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, child := range n.Content {
		blockStyle(child)
	}
}

// JUnitTestSuites is the root JUnit element.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one run.
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
}

// JUnitTestCase is one check or threshold.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitFailure `xml:"error,omitempty"`
}

// JUnitFailure describes a failed case.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

func resultJUnit(r *engine.Result) ([]byte, error) {
	suite := JUnitTestSuite{
		Name:      r.Name,
		Time:      r.Duration.Seconds(),
		Timestamp: r.StartTime.Format(time.RFC3339),
		SystemOut: fmt.Sprintf("run %s against %s", r.RunID, r.Target),
	}
	class := "genload." + r.Name

	if r.Metrics != nil {
		for _, chk := range r.Metrics.Checks {
			tc := JUnitTestCase{Name: "check: " + chk.Name, Classname: class}
			if chk.Fails > 0 {
				tc.Failure = &JUnitFailure{
					Message: fmt.Sprintf("%d of %d evaluations failed", chk.Fails, chk.Passes+chk.Fails),
					Type:    "CheckFailure",
				}
				suite.Failures++
			}
			suite.TestCases = append(suite.TestCases, tc)
		}
	}

	for _, th := range r.Thresholds {
		tc := JUnitTestCase{Name: fmt.Sprintf("threshold: %s %s", th.Metric, th.Expression), Classname: class}
		if !th.Passed {
			tc.Failure = &JUnitFailure{
				Message: "threshold crossed, actual " + th.Value,
				Type:    "ThresholdFailure",
				Content: th.Message,
			}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	if r.Error != "" {
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      "run",
			Classname: class,
			Time:      suite.Time,
			Error:     &JUnitFailure{Message: r.Error, Type: "RunError"},
		})
		suite.Errors++
	}
	suite.Tests = len(suite.TestCases)

	out, err := xml.MarshalIndent(JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Package jsonpath reads values out of response bodies with JSONPath-style
// expressions such as "$.response" or "$.choices[0].text".
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value at path rendered as a string. found is false when
// the path does not resolve; err is set only for unusable input.
func Lookup(body []byte, path string) (value string, found bool, err error) {
	if len(body) == 0 {
		return "", false, fmt.Errorf("empty body")
	}
	if path == "" {
		return "", false, fmt.Errorf("empty path")
	}
	if !gjson.ValidBytes(body) {
		return "", false, fmt.Errorf("body is not valid JSON")
	}

	res := gjson.GetBytes(body, toGjson(path))
	if !res.Exists() {
		return "", false, nil
	}
	if res.Type == gjson.Null {
		return "null", true, nil
	}
	return res.String(), true, nil
}

// Extract is Lookup that treats a missing path as an error.
func Extract(body []byte, path string) (string, error) {
	v, ok, err := Lookup(body, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	return v, nil
}

// toGjson maps "$.a.b[0]['c']" onto gjson's "a.b.0.c".
func toGjson(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	r := strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "", "[", ".", "]", "")
	path = r.Replace(path)
	return strings.TrimPrefix(path, ".")
}

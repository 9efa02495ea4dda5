package httpflow

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/torosent/vuload/internal/workflow"
)

// lookupJSON evaluates path against body. A leading "$." is accepted and a
// bare "$" selects the whole document.
func lookupJSON(body []byte, path string) gjson.Result {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}
	return gjson.GetBytes(body, path)
}

// findRegex returns the first capture group of pattern, or the whole match
// when the pattern has no groups.
func findRegex(body []byte, pattern string) (string, bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	match := re.FindSubmatch(body)
	if match == nil {
		return "", false, nil
	}
	if len(match) > 1 {
		return string(match[1]), true, nil
	}
	return string(match[0]), true, nil
}

// matches reports whether body satisfies the wait condition of step. When it
// does not, the returned error says why.
func matches(step workflow.Step, body []byte) (bool, error) {
	if step.Text != "" && !bytes.Contains(body, []byte(step.Text)) {
		return false, fmt.Errorf("text %q not found", step.Text)
	}
	if step.JSONPath != "" {
		res := lookupJSON(body, step.JSONPath)
		if !res.Exists() {
			return false, fmt.Errorf("json path %q not found", step.JSONPath)
		}
		if step.Equals != "" && res.String() != step.Equals {
			return false, fmt.Errorf("json path %q is %q, want %q", step.JSONPath, res.String(), step.Equals)
		}
	}
	return true, nil
}

// extract stores the step's extractor values as session variables. A missing
// value fails the step so later placeholders never go out unresolved.
func (s *Session) extract(step workflow.Step, p *page) error {
	if len(step.Extract) == 0 {
		return nil
	}
	if p == nil {
		return fmt.Errorf("step %q: no response to extract from", step.Name)
	}
	for _, ex := range step.Extract {
		var (
			value string
			found bool
		)
		if ex.JSONPath != "" {
			res := lookupJSON(p.body, ex.JSONPath)
			value, found = res.String(), res.Exists()
		} else {
			var err error
			value, found, err = findRegex(p.body, ex.Regex)
			if err != nil {
				return fmt.Errorf("step %q: extract %q: %w", step.Name, ex.Name, err)
			}
		}
		if !found {
			return fmt.Errorf("step %q: extract %q: no match", step.Name, ex.Name)
		}
		s.vars[ex.Name] = value
	}
	return nil
}

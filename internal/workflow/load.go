package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaDoc string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("workflow.json", strings.NewReader(schemaDoc)); err != nil {
			schemaErr = fmt.Errorf("workflow schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("workflow.json")
	})
	return schema, schemaErr
}

// ValidationError lists every problem found in a workflow document.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid workflow: " + strings.Join(e.Issues, "; ")
}

// Load reads and validates the workflow stored at path.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Parse decodes a YAML (or JSON) workflow document, checks it against the
// embedded schema and then against the semantic rules in Validate.
func Parse(data []byte) (*Workflow, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	for i := range wf.Steps {
		wf.Steps[i].Method = strings.ToUpper(wf.Steps[i].Method)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

func validateSchema(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	// Round-trip through encoding/json so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode workflow: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decode workflow: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &ValidationError{Issues: schemaIssues(verr)}
		}
		return err
	}
	return nil
}

func schemaIssues(err *jsonschema.ValidationError) []string {
	var out []string
	if len(err.Causes) == 0 && err.Message != "" {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, fmt.Sprintf("%s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		out = append(out, schemaIssues(cause)...)
	}
	return out
}

// Validate enforces the rules the schema cannot express.
func (w *Workflow) Validate() error {
	var issues []string
	if strings.TrimSpace(w.Name) == "" {
		issues = append(issues, "name is required")
	}
	if len(w.Steps) == 0 {
		issues = append(issues, "at least one step is required")
	}
	if w.BaseURL != "" {
		if u, err := url.Parse(w.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("base_url %q must be an absolute URL", w.BaseURL))
		}
	}

	terminals := 0
	for i, s := range w.Steps {
		where := fmt.Sprintf("steps[%d] (%s)", i, s.Name)
		if strings.TrimSpace(s.Name) == "" {
			issues = append(issues, fmt.Sprintf("steps[%d]: name is required", i))
		}
		if !s.Action.Valid() {
			issues = append(issues, fmt.Sprintf("%s: unknown action %q", where, s.Action))
			continue
		}
		if s.Terminal {
			terminals++
		}
		if s.Timeout < 0 {
			issues = append(issues, fmt.Sprintf("%s: timeout must not be negative", where))
		}
		switch s.Action {
		case ActionNavigate, ActionClick, ActionWebSocket:
			if s.URL == "" {
				issues = append(issues, fmt.Sprintf("%s: url is required for %s", where, s.Action))
			}
		case ActionFill:
			if s.URL == "" {
				issues = append(issues, fmt.Sprintf("%s: url is required for fill", where))
			}
			if len(s.Form) == 0 && s.Body == "" {
				issues = append(issues, fmt.Sprintf("%s: fill needs form fields or a body", where))
			}
		case ActionWait:
			if s.Text == "" && s.JSONPath == "" {
				issues = append(issues, fmt.Sprintf("%s: wait needs text or json_path", where))
			}
		}
		for _, ex := range s.Extract {
			if (ex.JSONPath == "") == (ex.Regex == "") {
				issues = append(issues, fmt.Sprintf("%s: extractor %q needs exactly one of json_path or regex", where, ex.Name))
			}
		}
	}
	if terminals > 1 {
		issues = append(issues, "at most one terminal step is allowed")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

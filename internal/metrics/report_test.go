package metrics_test

import (
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

func TestWithoutDiagnosticsStripsEvidence(t *testing.T) {
	r := metrics.RunReport{
		ID: "run",
		Results: []metrics.UserResult{
			{User: 1, Success: true},
			{
				User:         2,
				Error:        "step \"checkout\": status 503",
				FailureState: &metrics.Diagnostic{StatusCode: 503},
				Log:          []metrics.LogEntry{{Time: time.Now(), Level: "warning", Step: "checkout", Message: "Attempt failed"}},
			},
		},
	}

	stripped := r.WithoutDiagnostics()
	for _, res := range stripped.Results {
		if res.FailureState != nil || res.Log != nil {
			t.Errorf("user %d still carries evidence: %+v", res.User, res)
		}
	}
	if stripped.Results[1].Error == "" {
		t.Error("the failure message must be kept")
	}
	if r.Results[1].FailureState == nil || len(r.Results[1].Log) != 1 {
		t.Error("the original report must not be modified")
	}
}

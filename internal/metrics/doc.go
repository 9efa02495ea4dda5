// Package metrics defines the result schema of a load test run and the
// aggregation that turns per-user outcomes into a RunReport.
//
// # Schema
//
// Every virtual user yields one [UserResult]. The orchestrator hands the full
// slice to [Summarize], which builds a [RunReport]:
//
//	report := metrics.Summarize(metrics.RunInput{
//		ID:        metrics.NewRunID(start),
//		Timestamp: start,
//		Elapsed:   time.Since(start),
//		Resources: metrics.CaptureResources(),
//	}, results)
//
// Two aggregation scopes coexist and must not be conflated:
//   - [Statistics] averages timing phases over successful users only and is
//     nil when nobody succeeded.
//   - [RunMetrics] is derived over every result (response time, error rate,
//     throughput) regardless of success.
//
// # Metrics
//
// Tracked series are a closed enumeration of [Kind] values wrapped in
// [Metric]; timing phases use [StepMetric]. [Observe] extracts the values
// present for a report, omitting anything whose source data is absent.
//
// # Live progress
//
// [Collector] records users as they finish and is safe for concurrent use.
package metrics

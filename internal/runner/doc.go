// Package runner is the execution engine of vuload: it retries workflow
// steps, runs virtual users and orchestrates a whole load test run.
//
// # Retry
//
// [RetryPolicy.Execute] attempts an operation up to MaxAttempts times with a
// fixed delay between attempts (none after the last). When every attempt
// fails it returns a [RetryExhaustedError] wrapping only the last error.
//
// # Virtual users
//
// A [VirtualUser] opens an isolated session from a workflow.Executor, runs
// the workflow's steps strictly in order and always closes the session. A
// failed terminal step captures a diagnostic snapshot; any other failed step
// aborts the rest of the workflow. Either way the user ends with
// success=false and never returns an error.
//
// # Orchestration
//
// The [Orchestrator] starts one goroutine per user, optionally paced by a
// rate limiter, and waits for all of them before summarizing:
//
//	orch, err := runner.New(runner.Options{
//		Users:    10,
//		Workflow: wf,
//		Executor: executor,
//	})
//	if err != nil {
//		return err
//	}
//	report := orch.Run(ctx)
//
// A panic inside one user is recovered into a failed, crashed result.
package runner

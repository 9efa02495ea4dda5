package metrics

import (
	"runtime"
)

// CaptureResources snapshots heap, CPU time and goroutine count of this process.
func CaptureResources() *ResourceSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &ResourceSnapshot{
		HeapUsedBytes: ms.HeapAlloc,
		CPUTimeMs:     processCPUMillis(),
		Goroutines:    runtime.NumGoroutine(),
	}
}

//go:build !unix

package metrics

func processCPUMillis() float64 { return 0 }

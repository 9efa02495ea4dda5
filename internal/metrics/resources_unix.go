//go:build unix

package metrics

import "syscall"

func processCPUMillis() float64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	user := float64(ru.Utime.Sec)*1000 + float64(ru.Utime.Usec)/1000
	sys := float64(ru.Stime.Sec)*1000 + float64(ru.Stime.Usec)/1000
	return user + sys
}

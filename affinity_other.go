//go:build !linux

package taskpool

func pinToCPU(int) error { return nil }

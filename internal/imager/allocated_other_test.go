//go:build !linux

package imager

import "testing"

func assertAllocated(*testing.T, string, int64) {}

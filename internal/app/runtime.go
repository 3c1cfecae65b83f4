package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// testModeEnv makes the binaries return before binding ports or starting workers.
const testModeEnv = "SALESDASH_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	raw := strings.TrimSpace(os.Getenv(testModeEnv))
	on, err := strconv.ParseBool(raw)
	testModeFlag.Store((err == nil && on) || strings.EqualFold(raw, "yes"))
}

// InTestMode reports whether the process runs under tests.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}

package main

import (
	"context"
	"testing"
)

func TestMainExitsWithCommandStatus(t *testing.T) {
	origLoad, origExec, origExit := loadEnvFunc, executeFunc, exitFunc
	defer func() { loadEnvFunc, executeFunc, exitFunc = origLoad, origExec, origExit }()

	loadEnvFunc = func(...string) error { return nil }
	executeFunc = func(ctx context.Context) int {
		if ctx == nil {
			t.Fatal("expected a context")
		}
		return 3
	}
	var code int
	exitFunc = func(c int) { code = c }

	main()
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

package config_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/captify/captify/internal/platform/config"
)

const exitHelperEnv = "CAPTIFY_EXITF_HELPER"

func TestExitfWritesStderrAndExitsOne(t *testing.T) {
	if os.Getenv(exitHelperEnv) == "1" {
		config.Exitf("seed: %s", "fixture file is required")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitfWritesStderrAndExitsOne$")
	cmd.Env = append(os.Environ(), exitHelperEnv+"=1")
	var stderr strings.Builder
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %T %v, want *exec.ExitError", err, err)
	}
	if code := exitErr.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got := stderr.String(); got != "seed: fixture file is required\n" {
		t.Fatalf("stderr = %q, want %q", got, "seed: fixture file is required\n")
	}
}

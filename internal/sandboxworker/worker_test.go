package sandboxworker

import (
	"strings"
	"testing"
	"time"
)

func TestEvaluateRunsEntrypoint(t *testing.T) {
	res := evaluate(upperScript, "Entrypoint", Job{Source: "abc"}, time.Second)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Compiled != "ABC" {
		t.Errorf("Compiled = %q, want %q", res.Compiled, "ABC")
	}
}

func TestEvaluateReportsMissingEntrypoint(t *testing.T) {
	res := evaluate(`var notAFunction = 1;`, "Entrypoint", Job{Source: "abc"}, time.Second)
	if res.Error == "" {
		t.Fatal("expected error for missing entrypoint")
	}
	if !strings.Contains(res.Error, "not a function") {
		t.Errorf("error = %q, want mention of missing entrypoint", res.Error)
	}
}

func TestEvaluateReportsScriptLoadError(t *testing.T) {
	res := evaluate(`this is not valid javascript {{{`, "Entrypoint", Job{Source: "abc"}, time.Second)
	if res.Error == "" {
		t.Fatal("expected error for invalid script")
	}
}

func TestEvaluateTimesOutOnInfiniteLoop(t *testing.T) {
	start := time.Now()
	res := evaluate(hangScript, "Entrypoint", Job{Source: "abc"}, 200*time.Millisecond)
	elapsed := time.Since(start)

	if res.Error == "" {
		t.Fatal("expected timeout error from interrupted VM")
	}
	if elapsed > 2*time.Second {
		t.Errorf("evaluate took %s, want it interrupted promptly", elapsed)
	}
}

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNewIncludesCallerLocation(t *testing.T) {
	err := New("something %s", "failed")
	if !strings.Contains(err.Error(), "errors_test.go:") {
		t.Errorf("expected caller location in %q", err.Error())
	}
	if !strings.Contains(err.Error(), "something failed") {
		t.Errorf("expected message in %q", err.Error())
	}
}

func TestWrapf(t *testing.T) {
	base := errors.New("root cause")
	err := Wrapf(base, "while doing %s", "work")
	if !errors.Is(err, base) {
		t.Error("wrapped error must unwrap to the original")
	}
	if !strings.Contains(err.Error(), "while doing work: root cause") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestWrapfNil(t *testing.T) {
	if Wrapf(nil, "ignored") != nil {
		t.Error("wrapping nil must stay nil")
	}
}

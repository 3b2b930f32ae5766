package service

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetriable(t *testing.T) {
	i := 0
	ctx := context.Background()
	tim := time.Now()
	err := Retriable(ctx, func() error {
		i++
		return fmt.Errorf("%d", i)
	}, time.Microsecond, 3)

	if time.Since(tim) < 3*time.Microsecond {
		t.Errorf("err: excepted at least 30µs got %v", time.Since(tim))
	}

	if err == nil {
		t.Error("err: excepted 3 got nil")
	}
	if err.Error() != "3" {
		t.Error("err: excepted 3 got " + err.Error())
	}
}

func TestMergeErrors(t *testing.T) {
	errA := fmt.Errorf("A")
	errB := fmt.Errorf("B")
	if err := MergeErrors(false, errA, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := MergeErrors(false, errA, errB); err == nil {
		t.Error("expected an error, got nil")
	}
	if err := MergeErrors(true, nil, errB); err == nil || err.Error() != "B" {
		t.Errorf("expected B, got %v", err)
	}
	if err := MergeErrors(true, errA); err != errA {
		t.Errorf("expected A, got %v", err)
	}
}

func TestFatal(t *testing.T) {
	err := MakeFatal(fmt.Errorf("fatal error"))
	if !Fatal(err) {
		t.Fail()
	}
	if Fatal(fmt.Errorf("plain error")) {
		t.Fail()
	}
	if !Fatal(fmt.Errorf("wrap: %w", err)) {
		t.Fail()
	}
}

package account

import (
	"context"
	"testing"
)

func TestResolve_ReturnsMemoizedIDWithoutTouchingProviderOrRedis(t *testing.T) {
	r := New(nil, nil, nil)
	r.setMemo("acct_memoized")

	id, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != "acct_memoized" {
		t.Errorf("Resolve() = %q, want acct_memoized", id)
	}
}

func TestSetMemo_IsConcurrencySafe(t *testing.T) {
	r := New(nil, nil, nil)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			r.setMemo("acct_concurrent")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	id, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != "acct_concurrent" {
		t.Errorf("Resolve() = %q, want acct_concurrent", id)
	}
}

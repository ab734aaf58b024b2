package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get report: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound not recognized")
	}
	if IsNotFound(errors.New("something else")) {
		t.Error("unrelated error reported as not-found")
	}
}

func TestBackendUnavailableChain(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("append event: %w", BackendUnavailable("append event", cause))

	if !IsBackendUnavailable(err) {
		t.Error("wrapped BackendUnavailableError not recognized")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost in the chain")
	}
}

func TestVectorizationChain(t *testing.T) {
	cause := errors.New("embedder offline")
	err := fmt.Errorf("embed text: %w", Vectorization(cause))

	var verr *VectorizationError
	if !errors.As(err, &verr) {
		t.Fatal("wrapped VectorizationError not recognized")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost in the chain")
	}
	if IsBackendUnavailable(err) {
		t.Error("vectorization failure misclassified as backend unavailability")
	}
}

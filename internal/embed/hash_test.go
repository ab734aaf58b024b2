package embed

import (
	"context"
	"math"
	"testing"
)

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(64)

	a, err := p.Embed(context.Background(), []string{"bearing failure on solar pump"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Embed(context.Background(), []string{"bearing failure on solar pump"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at dimension %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestHashProviderNormalization(t *testing.T) {
	p := NewHashProvider(DefaultDimension)

	// Case and surrounding whitespace must not change the vector.
	vecs, err := p.Embed(context.Background(), []string{"Motor Overheating", "  motor overheating  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Cosine(vecs[0], vecs[1]) < 0.9999 {
		t.Errorf("normalized inputs should embed identically, got similarity %v", Cosine(vecs[0], vecs[1]))
	}

	// Unit length.
	var mag float64
	for _, v := range vecs[0] {
		mag += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(mag)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, got magnitude %v", math.Sqrt(mag))
	}
}

func TestHashProviderEmptyInput(t *testing.T) {
	p := NewHashProvider(32)

	vecs, err := p.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs[0]) != 32 {
		t.Fatalf("got dimension %d, want 32", len(vecs[0]))
	}
	for i, v := range vecs[0] {
		if v != 0 {
			t.Fatalf("expected zero vector for empty input, got %v at %d", v, i)
		}
	}

	if vecs, _ := p.Embed(context.Background(), nil); vecs != nil {
		t.Errorf("expected nil for empty batch, got %v", vecs)
	}
}

func TestHashProviderSharedTokens(t *testing.T) {
	p := NewHashProvider(DefaultDimension)

	vecs, err := p.Embed(context.Background(), []string{
		"equipment failure bearing_wear SP-001",
		"equipment failure bearing_wear SP-001 completed",
		"irrigation schedule update",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	related := Cosine(vecs[0], vecs[1])
	unrelated := Cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Fatalf("related similarity %v should exceed unrelated %v", related, unrelated)
	}
	if related < 0.6 {
		t.Errorf("texts sharing most tokens scored %v, want >= 0.6", related)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Bearing failure on SP-001, temp: 82.5C!")
	want := []string{"bearing", "failure", "on", "sp-001", "temp", "82", "5c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPaddedHashProvider(t *testing.T) {
	native := NewHashProvider(DefaultDimension)
	padded := NewPaddedHashProvider(DefaultDimension, DefaultTargetDimension)

	if padded.Dimension() != DefaultTargetDimension {
		t.Fatalf("dimension = %d, want %d", padded.Dimension(), DefaultTargetDimension)
	}

	a, _ := native.Embed(context.Background(), []string{"pump bearing wear"})
	b, _ := padded.Embed(context.Background(), []string{"pump bearing wear"})
	if len(b[0]) != DefaultTargetDimension {
		t.Fatalf("padded vector length = %d", len(b[0]))
	}
	// Padding must not change similarities.
	if sim := Cosine(a[0], b[0]); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("padded similarity = %v, want 1.0", sim)
	}
	for _, v := range b[0][DefaultDimension:] {
		if v != 0 {
			t.Fatal("padding region not zero")
		}
	}
}

func TestCosineSelf(t *testing.T) {
	p := NewHashProvider(128)
	vecs, _ := p.Embed(context.Background(), []string{"pump cavitation detected"})

	if sim := Cosine(vecs[0], vecs[0]); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("self similarity = %v, want 1.0", sim)
	}
}

func TestCosineZeroMagnitude(t *testing.T) {
	zero := Zero(16)
	other := []float32{1, 2, 3}

	if sim := Cosine(zero, other); sim != 0 {
		t.Errorf("zero-vector similarity = %v, want 0", sim)
	}
	if sim := Cosine(zero, zero); sim != 0 {
		t.Errorf("zero-zero similarity = %v, want 0", sim)
	}
}

func TestPad(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}

	padded := Pad(vec, 8)
	if len(padded) != 8 {
		t.Fatalf("got length %d, want 8", len(padded))
	}
	for i := 0; i < 3; i++ {
		if padded[i] != vec[i] {
			t.Errorf("padding changed element %d", i)
		}
	}
	for i := 3; i < 8; i++ {
		if padded[i] != 0 {
			t.Errorf("expected zero padding at %d, got %v", i, padded[i])
		}
	}

	if truncated := Pad(padded, 3); len(truncated) != 3 {
		t.Errorf("got length %d, want 3", len(truncated))
	}
}

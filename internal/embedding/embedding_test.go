package embedding

import (
	"context"
	"testing"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(Config{Dimension: 128})

	a, err := p.Embed(context.Background(), []string{"prévisions météo semaine"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := p.Embed(context.Background(), []string{"prévisions météo semaine"})

	if Cosine(a[0], b[0]) < 0.999 {
		t.Error("identical texts should embed identically")
	}
}

func TestLocalProviderLexicalOverlap(t *testing.T) {
	p := NewLocalProvider(Config{Dimension: 256})

	vecs, err := p.Embed(context.Background(), []string{
		"quelle météo demain sur ma parcelle",
		"météo demain sur la parcelle nord",
		"dose AMM autorisée pour ce produit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	near := Cosine(vecs[0], vecs[1])
	far := Cosine(vecs[0], vecs[2])
	if near <= far {
		t.Errorf("overlapping texts should score higher: near=%f far=%f", near, far)
	}
}

func TestLocalProviderNormalized(t *testing.T) {
	p := NewLocalProvider(Config{Dimension: 64})
	vecs, _ := p.Embed(context.Background(), []string{"traitement fongicide blé"})

	var mag float64
	for _, v := range vecs[0] {
		mag += float64(v) * float64(v)
	}
	if mag < 0.99 || mag > 1.01 {
		t.Errorf("vector magnitude %f, want ~1", mag)
	}
}

func TestCosineEdgeCases(t *testing.T) {
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("nil vectors: got %f, want 0", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths: got %f, want 0", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero magnitude: got %f, want 0", got)
	}
	if got := Cosine([]float32{1, 2}, []float32{1, 2}); got < 0.999 {
		t.Errorf("identical vectors: got %f, want 1", got)
	}
}

func TestDefaultDimension(t *testing.T) {
	p := NewLocalProvider(Config{})
	if p.Dimension() != 256 {
		t.Errorf("got dimension %d, want 256", p.Dimension())
	}
}

// Package embedding turns text into dense vectors for knowledge retrieval.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different length are an error; a zero-magnitude vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aMag += x * x
		bMag += y * y
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// ArticleText is the text embedded for a knowledge article.
func ArticleText(title, content string) string {
	return title + "\n\n" + content
}

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultHashDimensions = 256

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashClient is a local embedding client based on feature hashing of word
// tokens. Texts sharing words get similar vectors; nothing leaves the process.
type HashClient struct {
	dim int
}

func NewHashClient(dim int) *HashClient {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &HashClient{dim: dim}
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (h *HashClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, h.Embed(t))
	}
	return out, nil
}

// Embed returns the L2-normalised token histogram of text.
func (h *HashClient) Embed(text string) []float32 {
	vec := make([]float32, h.dim)
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		// keep the vector non-zero so cosine similarity stays defined
		vec[0] = 1
		return vec
	}
	for _, tok := range tokens {
		f := fnv.New32a()
		f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.dim)]++
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashClient) Dimensions() int {
	return h.dim
}

package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/dgraph-io/ristretto"
	chromem "github.com/philippgille/chromem-go"
)

// Embedding providers understood by NewEmbeddingFunc.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// NewEmbeddingFunc builds the embedding function for the configured provider.
// A base URL switches the openai provider to an OpenAI-compatible endpoint.
func NewEmbeddingFunc(provider, model, apiKey, baseURL string) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, "":
		if baseURL != "" {
			return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil), nil
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai embeddings require an api key")
		}
		return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), nil
	case ProviderOllama:
		return chromem.NewEmbeddingFuncOllama(model, baseURL), nil
	case ProviderHash:
		return HashEmbedding(256), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// HashEmbedding is a deterministic bag-of-words embedding: each lowercased
// word token is hashed into one of dims buckets. Texts sharing words score
// high under cosine similarity. It needs no network and suits local runs.
func HashEmbedding(dims int) chromem.EmbeddingFunc {
	if dims < 2 {
		dims = 2
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := make([]float32, dims)
		// The last bucket is a constant so no text maps to the zero vector.
		v[dims-1] = 0.1
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[int(h.Sum32()%uint32(dims-1))] += 1
		}
		return normalize(v), nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

// EmbeddingCache memoises an embedding function by exact text, so the
// per-turn query and repeated re-indexing do not hit the provider twice.
type EmbeddingCache struct {
	cache *ristretto.Cache
	embed chromem.EmbeddingFunc
}

// NewEmbeddingCache wraps embed with a cache of at most maxEntries vectors.
func NewEmbeddingCache(embed chromem.EmbeddingFunc, maxEntries int64) (*EmbeddingCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: cache, embed: embed}, nil
}

// Func returns the caching embedding function. Returned vectors are copies.
func (c *EmbeddingCache) Func() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := c.cache.Get(text); ok {
			return append([]float32(nil), v.([]float32)...), nil
		}
		v, err := c.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, append([]float32(nil), v...), 1)
		return v, nil
	}
}

// Wait blocks until buffered writes are applied.
func (c *EmbeddingCache) Wait() { c.cache.Wait() }

// Close stops the cache's background goroutines.
func (c *EmbeddingCache) Close() { c.cache.Close() }

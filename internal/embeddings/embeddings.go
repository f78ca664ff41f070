package embeddings

import (
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Dimensions is the length of every embedding produced by the service. It
// must match the vector column of the frames table.
const Dimensions = 64

// Service turns tag and caption text into fixed-size vectors by feature
// hashing, so similar vocabularies land close under cosine distance.
type Service struct {
	dims  int
	cache sync.Map // content -> []float32
}

// NewService creates a service producing vectors of the given size.
func NewService(dims int) *Service {
	if dims <= 0 {
		dims = Dimensions
	}
	return &Service{dims: dims}
}

// Embed returns the L2-normalized hashed bag-of-words vector for content.
// Content without any word yields the zero vector.
func (s *Service) Embed(content string) []float32 {
	if cached, ok := s.cache.Load(content); ok {
		return cached.([]float32)
	}

	vec := make([]float32, s.dims)
	for _, token := range tokenize(content) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()

		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(s.dims))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	s.cache.Store(content, vec)
	return vec
}

func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

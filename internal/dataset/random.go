package dataset

import "gonum.org/v1/gonum/mathext/prng"

// Generator draws uniform variates from a 32-bit Mersenne Twister. Doubles
// are assembled from two outputs with 53 bits of precision, the same
// construction NumPy's legacy RandomState uses, so a given seed reproduces
// the reference numeric stream exactly.
type Generator struct {
	src *prng.MT19937
}

// NewGenerator returns a generator seeded with the low 32 bits of seed.
func NewGenerator(seed uint64) *Generator {
	src := prng.NewMT19937()
	src.Seed(seed)
	return &Generator{src: src}
}

// Float64 returns a value in [0, 1).
func (g *Generator) Float64() float64 {
	a := g.src.Uint32() >> 5
	b := g.src.Uint32() >> 6
	return (float64(a)*67108864.0 + float64(b)) / 9007199254740992.0
}

// Uniform returns a value in [low, high).
func (g *Generator) Uniform(low, high float64) float64 {
	return low + (high-low)*g.Float64()
}

// UniformN draws n values from Uniform(low, high) in sequence.
func (g *Generator) UniformN(low, high float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.Uniform(low, high)
	}
	return out
}

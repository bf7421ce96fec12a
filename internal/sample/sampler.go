// Package sample implements temperature scaling, softmax, and top-p
// (nucleus) sampling over a logits vector.
package sample

import (
	"sort"

	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"
)

// candidate pairs a probability with its vocabulary index; Sampler reuses
// one scratch slice of these across every call to avoid per-token
// allocation.
type candidate struct {
	prob  float32
	index int32
}

// Sampler draws a token id from a logits vector. It owns its RNG seed
// exclusively; nothing else reads or mutates it.
type Sampler struct {
	vocabSize int
	scratch   []candidate
	rng       *rng
}

// New returns a Sampler sized for vocabSize, seeded with seed.
func New(vocabSize int, seed uint64) *Sampler {
	return &Sampler{
		vocabSize: vocabSize,
		scratch:   make([]candidate, vocabSize),
		rng:       newRNG(seed),
	}
}

// Sample consumes logits (mutated in place) plus temperature and top_p and
// returns a token id.
func (s *Sampler) Sample(logits []float32, temperature, topP float32) int32 {
	if temperature == 0 {
		return argmax(logits)
	}

	vecf32.Scale(1/temperature, logits)
	softmax(logits)

	if topP <= 0 || topP >= 1 {
		return s.sampleMultinomial(logits)
	}
	return s.sampleTopP(logits, topP)
}

func argmax(logits []float32) int32 {
	best := 0
	for i, v := range logits[1:] {
		if v > logits[best] {
			best = i + 1
		}
	}
	return int32(best)
}

// sampleMultinomial walks the cumulative distribution with a uniform draw,
// returning the first index whose prefix sum exceeds r. Rounding underflow
// (the cumulative sum never quite reaches r due to fp32 error) falls back
// to the last index.
func (s *Sampler) sampleMultinomial(probs []float32) int32 {
	r := s.rng.float32()
	var cdf float32
	for i, p := range probs {
		cdf += p
		if r < cdf {
			return int32(i)
		}
	}
	return int32(len(probs) - 1)
}

// sampleTopP implements nucleus sampling: filter out anything that
// provably cannot be in the nucleus, sort survivors descending, keep a
// prefix whose cumulative mass first exceeds topP, then draw from that
// prefix.
func (s *Sampler) sampleTopP(probs []float32, topP float32) int32 {
	cutoff := (1 - topP) / float32(s.vocabSize-1)

	n := 0
	for i, p := range probs {
		if p >= cutoff {
			s.scratch[n] = candidate{prob: p, index: int32(i)}
			n++
		}
	}
	kept := s.scratch[:n]

	sort.Slice(kept, func(i, j int) bool { return kept[i].prob > kept[j].prob })

	var cumsum float32
	lastIdx := len(kept) - 1
	for i, c := range kept {
		cumsum += c.prob
		if cumsum > topP {
			lastIdx = i
			break
		}
	}
	kept = kept[:lastIdx+1]

	r := s.rng.float32() * cumsum
	var running float32
	for _, c := range kept {
		running += c.prob
		if running > r {
			return c.index
		}
	}
	return kept[len(kept)-1].index
}

func softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range x {
		e := math32.Exp(v - maxVal)
		x[i] = e
		sum += e
	}
	vecf32.Scale(1/sum, x)
}

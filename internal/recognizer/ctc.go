package recognizer

import "math"

// DecodedSequence is one greedy CTC decode.
type DecodedSequence struct {
	Collapsed     []int
	CollapsedProb []float64
}

// CTCCollapse drops blanks and merges repeats. A repeat separated by a
// blank is kept as a new symbol.
func CTCCollapse(indices []int, probs []float64, blank int) ([]int, []float64) {
	outIdx := make([]int, 0, len(indices))
	outProb := make([]float64, 0, len(indices))
	prev := -1
	for i, idx := range indices {
		if idx == blank || idx == prev {
			prev = idx
			continue
		}
		outIdx = append(outIdx, idx)
		p := 0.0
		if i < len(probs) {
			p = probs[i]
		}
		outProb = append(outProb, p)
		prev = idx
	}
	return outIdx, outProb
}

// DecodeCTCGreedy decodes [N,T,C] logits, or [N,C,T] when classesFirst.
func DecodeCTCGreedy(logits []float32, shape []int64, blank int, classesFirst bool) []DecodedSequence {
	if len(shape) != 3 {
		return nil
	}
	n, tDim, cDim := int(shape[0]), int(shape[1]), int(shape[2])
	if classesFirst {
		tDim, cDim = cDim, tDim
	}
	if n <= 0 || tDim <= 0 || cDim <= 0 || len(logits) < n*tDim*cDim {
		return nil
	}

	out := make([]DecodedSequence, n)
	step := make([]float32, cDim)
	for b := range n {
		base := b * tDim * cDim
		indices := make([]int, tDim)
		probs := make([]float64, tDim)
		for t := range tDim {
			if classesFirst {
				for k := range cDim {
					step[k] = logits[base+k*tDim+t]
				}
			} else {
				copy(step, logits[base+t*cDim:base+(t+1)*cDim])
			}
			indices[t], probs[t] = argmaxProb(step)
		}
		idx, p := CTCCollapse(indices, probs, blank)
		out[b] = DecodedSequence{Collapsed: idx, CollapsedProb: p}
	}
	return out
}

// argmaxProb returns the winning class and its probability, applying a
// softmax unless the step already sums to one.
func argmaxProb(v []float32) (int, float64) {
	best, sum := 0, 0.0
	probLike := true
	for i, x := range v {
		if x > v[best] {
			best = i
		}
		sum += float64(x)
		if x < 0 || x > 1 {
			probLike = false
		}
	}
	if probLike && math.Abs(sum-1) < 0.01 {
		return best, float64(v[best])
	}
	denom := 0.0
	for _, x := range v {
		denom += math.Exp(float64(x - v[best]))
	}
	return best, 1 / denom
}

// SequenceConfidence is the mean per-character probability.
func SequenceConfidence(charProbs []float64) float64 {
	if len(charProbs) == 0 {
		return 0
	}
	s := 0.0
	for _, p := range charProbs {
		s += p
	}
	return s / float64(len(charProbs))
}

// classesFirst guesses the layout of a rank-3 output from the class count.
func classesFirst(shape []int64, classes int) bool {
	if len(shape) != 3 {
		return false
	}
	return int(shape[2]) != classes && int(shape[1]) == classes
}

package discriminator

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/samuelfneumann/seqgan/sequence"
)

// featurizer maps sequences to fixed length vectors of hashed n-gram
// frequencies
type featurizer struct {
	buckets int
	ngram   int
}

// features returns the row major feature matrix of b. Row i is the
// feature vector of b[i].
func (f featurizer) features(b sequence.Batch) []float64 {
	out := make([]float64, len(b)*f.buckets)
	for i, s := range b {
		f.fill(s, out[i*f.buckets:(i+1)*f.buckets])
	}
	return out
}

// fill adds the n-gram frequencies of s to row. Each n-gram order
// contributes a total weight of 1.
func (f featurizer) fill(s sequence.Sequence, row []float64) {
	buf := make([]byte, 8)
	for n := 1; n <= f.ngram && n <= len(s); n++ {
		windows := len(s) - n + 1
		weight := 1.0 / float64(windows)

		for start := 0; start < windows; start++ {
			h := fnv.New64a()
			binary.LittleEndian.PutUint64(buf, uint64(n))
			h.Write(buf)
			for _, tok := range s[start : start+n] {
				binary.LittleEndian.PutUint64(buf, uint64(tok))
				h.Write(buf)
			}
			row[h.Sum64()%uint64(f.buckets)] += weight
		}
	}
}

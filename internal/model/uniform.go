package model

// Uniform is a debug backend that returns the same flat logits for every
// position. Greedy decoding over it always picks token 0; sampled decoding
// draws uniformly. Useful for exercising the session pipeline and for
// throughput measurements of everything except the kernels.
type Uniform struct {
	vocab int
}

func NewUniform(vocabSize int) *Uniform {
	return &Uniform{vocab: vocabSize}
}

func (u *Uniform) Forward(tokens []int, pos int) ([]float32, error) {
	logits := make([]float32, u.vocab)
	for i := range logits {
		logits[i] = 1
	}
	return logits, nil
}

// Generates a minimal synthetic .gguf checkpoint for exercising the
// session pipeline with the uniform backend:
//
//	go run scripts/gen_gguf/main.go
//	volley -model test.gguf -backend uniform -n 20
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

var vocab = []string{
	"<unk>", "<s>", "</s>",
	"▁", "▁the", "▁my", "▁favorite", "▁theorem", "▁is",
	"a", "b", "c", "<0x0A>",
}

func main() {
	f, err := os.Create("test.gguf")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	le := binary.LittleEndian
	w := func(v interface{}) { binary.Write(f, le, v) }
	str := func(s string) {
		w(uint64(len(s)))
		f.WriteString(s)
	}

	w(uint32(0x46554747)) // magic
	w(uint32(3))          // version
	w(uint64(1))          // tensor count
	w(uint64(7))          // kv count

	kvU32 := func(key string, v uint32) {
		str(key)
		w(uint32(4)) // uint32 value type
		w(v)
	}

	str("general.architecture")
	w(uint32(8)) // string value type
	str("llama")

	kvU32("llama.context_length", 4096)
	kvU32("llama.embedding_length", 64)
	kvU32("llama.block_count", 1)
	kvU32("llama.attention.head_count", 4)
	kvU32("llama.attention.head_count_kv", 4)

	str("tokenizer.ggml.tokens")
	w(uint32(9)) // array value type
	w(uint32(8)) // of strings
	w(uint64(len(vocab)))
	for _, s := range vocab {
		str(s)
	}

	// One F32 tensor so the index is non-trivial.
	str("output_norm.weight")
	w(uint32(1))  // dims
	w(uint64(64)) // ne[0]
	w(uint32(0))  // F32
	w(uint64(0))  // data offset

	for i := 0; i < 64; i++ {
		w(math.Float32bits(1.0))
	}

	fmt.Println("wrote test.gguf")
}

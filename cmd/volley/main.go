package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-volley/internal/config"
	"github.com/23skdu/longbow-volley/internal/engine"
	"github.com/23skdu/longbow-volley/internal/logger"
	"github.com/23skdu/longbow-volley/internal/model"
	"github.com/23skdu/longbow-volley/internal/tokenizer"
	"github.com/23skdu/longbow-volley/internal/weights"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.ModelPath, "model", "", "Path to the quantized weight container (.gguf or legacy .ggml/.bin)")
	flag.StringVar(&cfg.TokenizerPath, "tokenizer", "", "Path to tokenizer.json; defaults to the container's embedded vocab")
	flag.StringVar(&cfg.Prompt, "prompt", cfg.Prompt, "Prompt text, or 'interactive' / 'chat'")
	flag.IntVar(&cfg.SampleLen, "n", cfg.SampleLen, "Number of tokens to generate per turn")
	flag.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature, 0 for greedy decoding")
	flag.Float64Var(&cfg.TopP, "top-p", cfg.TopP, "Nucleus sampling probability cutoff, 0 to disable")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for sampling")
	flag.Float64Var(&cfg.RepeatPenalty, "repeat-penalty", cfg.RepeatPenalty, "Penalty applied to repeated tokens, 1.0 to disable")
	flag.IntVar(&cfg.RepeatLastN, "repeat-last-n", cfg.RepeatLastN, "Context size considered for the repeat penalty")
	flag.StringVar(&cfg.Which, "which", cfg.Which, "Model family identifier")
	flag.IntVar(&cfg.GQA, "gqa", 0, "Attention grouping override for legacy containers, 0 for the family default")
	flag.BoolVar(&cfg.VerbosePrompt, "verbose-prompt", false, "Echo the prompt tokenization")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Model backend: native or uniform")
	flag.StringVar(&cfg.FamiliesPath, "families", "", "Optional replacement family default table (yaml)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Address to serve Prometheus metrics")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	flag.Parse()

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Log

	if err := cfg.Validate(); err != nil {
		flag.Usage()
		log.Fatal("invalid configuration", "error", err)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info("metrics serving", "addr", cfg.MetricsAddr+"/metrics")
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("shutting down", "signal", sig.String())
		os.Exit(0)
	}()

	families, err := loadFamilies(cfg.FamiliesPath)
	if err != nil {
		log.Fatal("failed to load family table", "error", err)
	}
	family, err := families.Resolve(cfg.Which)
	if err != nil {
		log.Fatal("unknown model family", "error", err)
	}

	legacyGQA := cfg.GQA
	if legacyGQA == 0 {
		legacyGQA = family.GQA
	}

	log.Info("loading model", "path", cfg.ModelPath, "which", cfg.Which)
	desc, err := weights.Load(cfg.ModelPath, weights.Options{LegacyGQA: legacyGQA})
	if err != nil {
		log.Fatal("failed to load weight container", "error", err)
	}

	tok, err := buildTokenizer(&cfg, desc)
	if err != nil {
		log.Fatal("failed to initialize tokenizer", "error", err)
	}

	m, err := model.Open(cfg.Backend, desc)
	if err != nil {
		log.Fatal("failed to open model backend", "backend", cfg.Backend, "error", err)
	}
	log.Info("model built",
		"format", desc.Format.String(),
		"tensors", len(desc.Tensors),
		"vocab", tok.VocabSize(),
		"gqa", desc.Params.GQA,
	)

	sampler := engine.NewSampler(engine.SamplerConfig{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		Seed:          cfg.Seed,
		RepeatPenalty: cfg.RepeatPenalty,
		RepeatLastN:   cfg.RepeatLastN,
	})

	session := engine.NewSession(m, tok, sampler, engine.SessionConfig{
		Mode:          engine.ParseMode(cfg.Prompt),
		SampleLen:     cfg.SampleLen,
		MaxSeqLen:     model.MaxSeqLen,
		Instruct:      family.Instruct,
		VerbosePrompt: cfg.VerbosePrompt,
	}, os.Stdin, os.Stdout)

	if err := session.Run(); err != nil {
		log.Fatal("generation failed", "error", err)
	}
}

func loadFamilies(path string) (model.Families, error) {
	if path != "" {
		return model.LoadFamilies(path)
	}
	return model.BuiltinFamilies()
}

// buildTokenizer prefers an explicit tokenizer.json, then falls back to the
// vocab embedded in the container itself.
func buildTokenizer(cfg *config.Config, desc *weights.Descriptor) (*tokenizer.Tokenizer, error) {
	if cfg.TokenizerPath != "" {
		return tokenizer.LoadJSON(cfg.TokenizerPath)
	}
	if desc.Format == weights.FormatGGUF {
		return tokenizer.FromKV(desc.KV)
	}
	return tokenizer.FromVocab(desc.Vocab, desc.VocabScores), nil
}

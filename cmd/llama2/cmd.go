package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollama/llama2.go/envconfig"
	"github.com/ollama/llama2.go/internal/checkpoint"
	"github.com/ollama/llama2.go/internal/generate"
	"github.com/ollama/llama2.go/internal/sample"
	"github.com/ollama/llama2.go/internal/tokenizer"
	"github.com/ollama/llama2.go/internal/transformer"
	"github.com/ollama/llama2.go/internal/workerpool"
	"github.com/ollama/llama2.go/logutil"
)

// appendEnvDocs appends an "Environment Variables" section to a command's
// usage template.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	usage := "\nEnvironment Variables:\n"
	for _, e := range envs {
		usage += fmt.Sprintf("      %-20s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}

// runOptions holds the CLI surface: per-run sampling and I/O knobs.
type runOptions struct {
	temperature float32
	topP        float32
	seed        int64
	steps       int
	flushEvery  int
	statsOn     int
	prompt      string
	tokenizer   string
}

// NewCLI builds the root command: a single binary that loads a checkpoint
// and tokenizer, then runs generation.
func NewCLI() *cobra.Command {
	var opts runOptions

	rootCmd := &cobra.Command{
		Use:           "llama2 CHECKPOINT",
		Short:         "Run inference against a Llama-2-family checkpoint",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], opts)
		},
	}

	rootCmd.Flags().Float32VarP(&opts.temperature, "temperature", "t", 1.0, "sampling temperature (clamped to >= 0)")
	rootCmd.Flags().Float32VarP(&opts.topP, "top-p", "p", 0.9, "nucleus sampling mass (clamped to default if outside [0,1])")
	rootCmd.Flags().Int64VarP(&opts.seed, "seed", "s", 0, "RNG seed (0 selects the current wall-clock time)")
	rootCmd.Flags().IntVarP(&opts.steps, "steps", "n", 256, "generation step budget (0 selects seq_len)")
	rootCmd.Flags().IntVarP(&opts.flushEvery, "flush", "b", 1, "stdout flush granularity in tokens")
	rootCmd.Flags().IntVarP(&opts.statsOn, "stats", "x", 1, "emit tok/s stats to stderr (0 disables)")
	rootCmd.Flags().StringVarP(&opts.prompt, "prompt", "i", "", "prompt text; if absent, read one line from stdin")
	rootCmd.Flags().StringVarP(&opts.tokenizer, "tokenizer", "z", "tokenizer.bin", "tokenizer path")

	appendEnvDocs(rootCmd, []envconfig.EnvVar{
		envconfig.AsMap()["LLAMA2_LOG_LEVEL"],
		envconfig.AsMap()["LLAMA2_NUM_THREADS"],
		envconfig.AsMap()["LLAMA2_SEED"],
	})

	return rootCmd
}

// run loads the checkpoint and tokenizer named by path/opts and drives one
// generation.
func run(path string, opts runOptions) error {
	logger := logutil.NewLogger(os.Stderr)

	temperature := opts.temperature
	if temperature < 0 {
		temperature = 0
	}

	topP := opts.topP
	if topP < 0 || topP > 1 {
		topP = 0.9
	}

	seed := seedFromOptions(opts.seed)

	ckpt, err := checkpoint.Open(path)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}
	defer ckpt.Close()

	tok, err := tokenizer.Load(opts.tokenizer, ckpt.Config.VocabSize)
	if err != nil {
		return fmt.Errorf("loading tokenizer: %w", err)
	}

	pool := workerpool.New(envconfig.NumThreads())
	tr := transformer.New(ckpt.Config, ckpt.Weights, pool)
	sampler := sample.New(ckpt.Config.VocabSize, seed)

	prompt := opts.prompt
	if prompt == "" {
		prompt = readPromptLine(os.Stdin)
	}

	logger.Debug("starting generation",
		"checkpoint", path, "tokenizer", opts.tokenizer,
		"temperature", temperature, "top_p", topP, "seed", seed,
		"steps", opts.steps, "threads", pool.Workers())

	driver := &generate.Driver{Transformer: tr, Tokenizer: tok, Sampler: sampler}
	genOpts := generate.Options{
		Steps:       opts.steps,
		Temperature: temperature,
		TopP:        topP,
		FlushEvery:  opts.flushEvery,
		Stats:       opts.statsOn != 0,
	}

	return driver.Generate(prompt, genOpts, os.Stdout, os.Stderr)
}

// seedFromOptions resolves the -s flag against LLAMA2_SEED and, failing
// both, the current wall-clock time.
func seedFromOptions(flagSeed int64) uint64 {
	if flagSeed != 0 {
		return uint64(flagSeed)
	}
	if seed, ok := envconfig.Seed(); ok {
		return seed
	}
	return uint64(time.Now().Unix())
}

// readPromptLine reads exactly one line, trimming its trailing newline, for
// the -i-less case.
func readPromptLine(r *os.File) string {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

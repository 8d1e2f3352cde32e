// Command test-llm sends one prompt to the configured model server and
// prints the reply.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := app.LoadConfigFromEnv()
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	prompt := "Hello, how are you?"
	if len(args) > 0 {
		prompt = strings.Join(args, " ")
	}

	client, prober := app.NewLLMClient(cfg, app.NewHTTPClient())
	ctx := context.Background()
	if prober != nil {
		if err := prober.Probe(ctx); err != nil {
			logger.Warn("model server check failed", zap.Error(err))
		}
	}

	start := time.Now()
	reply, err := client.Generate(ctx, prompt, nil)
	if err != nil {
		logger.Error("generate failed", zap.String("model", cfg.LLMModel), zap.Error(err))
		return 1
	}

	fmt.Println(reply.Text)
	logger.Info("generated",
		zap.String("model", reply.Model),
		zap.Int("prompt_tokens", reply.PromptTokens),
		zap.Int("completion_tokens", reply.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return 0
}

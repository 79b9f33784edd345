package main

import (
	"context"
	"encoding/json"
	"fmt"

	"lite-rag-go/internal/model"

	"github.com/spf13/cobra"
)

var (
	askProject     string
	askTopK        int
	askThreshold   float64
	askLocale      string
	askTemperature float64
	askMaxTokens   int
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer a question from a project's indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askProject, "project", "p", "", "project id")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default rag.top_k)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity score in [0, 1]")
	askCmd.Flags().StringVar(&askLocale, "locale", "", "template locale (default rag.default_locale)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "sampling temperature override")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max output tokens override")
	_ = askCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	req := model.RagRequest{
		ProjectID: askProject,
		Query:     args[0],
		TopK:      cfg.RAG.TopK,
		Threshold: &askThreshold,
		Locale:    askLocale,
	}
	if cmd.Flags().Changed("top-k") {
		req.TopK = askTopK
	}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = &askTemperature
	}
	if cmd.Flags().Changed("max-tokens") {
		req.MaxOutputTokens = &askMaxTokens
	}

	res, err := a.services.RAG.GenerateAnswer(ctx, req)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

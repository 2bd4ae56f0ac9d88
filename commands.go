package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/benchmark"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/ahmadzakiakmal/carbon-ledger/verifier"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func verifyReceiptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-receipt [file]",
		Short: "Stream a proof receipt to the verifier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Verifier.ReceiptPath
			if len(args) == 1 {
				path = args[0]
			}

			rv, err := verifier.Dial(cfg.Verifier.Address, logger.With("module", "verifier"),
				verifier.WithChunkSize(cfg.Verifier.ChunkSize),
				verifier.WithTimeout(cfg.Verifier.Timeout),
			)
			if err != nil {
				return err
			}
			defer rv.Close()

			result, err := rv.VerifyFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"verification_result": result})
		},
	}
}

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <footprint.json>",
		Short: "Validate a footprint document and summarize its chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc footprint.ProductFootprint
			if err := json.Unmarshal(raw, &doc); err != nil {
				return apperr.Validation("INVALID_FOOTPRINT", "Footprint is not valid JSON", err)
			}
			if err := footprint.Validate(&doc); err != nil {
				return err
			}
			summary, err := footprint.Summarize(&doc)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func benchCmd() *cobra.Command {
	var (
		workers    int
		duration   time.Duration
		url        string
		withProof  bool
		recordsDir string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive concurrent shipment workflows through a running worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "bench")

			fmt.Println("========================================")
			fmt.Println("   CONCURRENCY BENCHMARK")
			fmt.Println("========================================")
			fmt.Printf("Workers:    %d\n", workers)
			fmt.Printf("Duration:   %v\n", duration)
			fmt.Printf("Target:     %s\n", url)
			fmt.Printf("Proofing:   %v\n", withProof)
			fmt.Println("========================================")

			res, err := benchmark.Run(cmd.Context(), benchmark.Config{
				BaseURL:  url,
				Workers:  workers,
				Duration: duration,
				Timeout:  time.Minute,
				Proofing: withProof,
			}, logger)
			if err != nil {
				return err
			}
			benchmark.Print(res)

			filename, err := benchmark.WriteCSV(recordsDir, res)
			if err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			fmt.Printf("\nResults saved to: %s\n", filename)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:6000", "Worker base URL")
	cmd.Flags().BoolVar(&withProof, "proofing", false, "Include the proofing round-trip")
	cmd.Flags().StringVar(&recordsDir, "records", "./records", "Directory for CSV results")
	return cmd
}

// Command tsne embeds a CSV of numeric feature rows into 2 or 3
// dimensions and writes the coordinates back out as CSV.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nozzle/tsne"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		inputFile  string
		outputFile string
		verbose    bool
		cfg        = tsne.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:           "tsne",
		Short:         "Embed high-dimensional data with t-SNE",
		Long:          "Reads a headerless CSV of numeric rows, runs t-SNE and writes the embedding coordinates as CSV.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadCSV(inputFile)
			if err != nil {
				return fmt.Errorf("loading %s: %w", inputFile, err)
			}
			if verbose {
				fmt.Printf("Loaded %d samples with %d features\n", len(data), len(data[0]))
				total := cfg.EarlyExaggerationIter + cfg.NIter + cfg.LateExaggerationIter
				cfg.Callbacks = append(cfg.Callbacks, func(iter int, kl float64, _ [][]float64) bool {
					fmt.Printf("Iteration %d/%d, KL divergence %.4f\n", iter, total, kl)
					return true
				})
			}

			embedding, err := tsne.New(cfg).Fit(data)
			if err != nil {
				return err
			}

			if err := saveCSV(outputFile, embedding.Coords); err != nil {
				return fmt.Errorf("saving %s: %w", outputFile, err)
			}
			if verbose {
				fmt.Printf("Saved embedding to %s (final KL divergence %.4f)\n", outputFile, embedding.KLDivergence)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&inputFile, "input", "i", "", "input CSV file (required)")
	flags.StringVarP(&outputFile, "output", "o", "embedding.csv", "output CSV file")
	flags.IntVar(&cfg.NComponents, "components", cfg.NComponents, "number of output dimensions (2 or 3)")
	flags.Float64Var(&cfg.Perplexity, "perplexity", cfg.Perplexity, "perplexity of the affinity distribution")
	flags.StringVar(&cfg.Initialization, "init", cfg.Initialization, "initialization method (pca, random)")
	flags.StringVar(&cfg.NegativeGradientMethod, "method", cfg.NegativeGradientMethod, "negative gradient method (auto, bh, fft, exact)")
	flags.Float64Var(&cfg.Theta, "theta", cfg.Theta, "Barnes-Hut opening angle")
	flags.Float64Var(&cfg.LearningRate, "learning-rate", cfg.LearningRate, "gradient descent learning rate")
	flags.IntVar(&cfg.EarlyExaggerationIter, "early-iter", cfg.EarlyExaggerationIter, "early exaggeration iterations")
	flags.Float64Var(&cfg.EarlyExaggeration, "early-exaggeration", cfg.EarlyExaggeration, "early exaggeration factor")
	flags.IntVar(&cfg.NIter, "iter", cfg.NIter, "main phase iterations")
	flags.IntVar(&cfg.LateExaggerationIter, "late-iter", cfg.LateExaggerationIter, "late exaggeration iterations (0 disables)")
	flags.Float64Var(&cfg.LateExaggeration, "late-exaggeration", cfg.LateExaggeration, "late exaggeration factor")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flags.IntVar(&cfg.NumWorkers, "workers", cfg.NumWorkers, "worker count (0 = all CPUs)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print progress")
	cobra.CheckErr(cmd.MarkFlagRequired("input"))

	return cmd
}

// loadCSV loads data from a CSV file (no header, numeric values only).
func loadCSV(filename string) ([][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	data := make([][]float64, len(records))
	for i, record := range records {
		data[i] = make([]float64, len(record))
		for j, val := range record {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, col %d: %v", i, j, err)
			}
			data[i][j] = f
		}
	}
	return data, nil
}

// saveCSV saves an embedding to a CSV file.
func saveCSV(filename string, coords [][]float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	for _, row := range coords {
		record := make([]string, len(row))
		for j, val := range row {
			record[j] = strconv.FormatFloat(val, 'f', 6, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

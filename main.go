package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"time"
	"unicode/utf8"

	"github.com/paulchinnam/GPaulT/IO"
	"github.com/paulchinnam/GPaulT/optimizations"
	"github.com/paulchinnam/GPaulT/params"
	"github.com/paulchinnam/GPaulT/runlog"
	"github.com/paulchinnam/GPaulT/trainer"
	"github.com/paulchinnam/GPaulT/transformer"
	"github.com/paulchinnam/GPaulT/utils"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// parseFlags starts from the chosen preset and applies only the flags that
// were given on the command line.
func parseFlags(args []string) (params.TrainingConfig, error) {
	fs := flag.NewFlagSet("gpault", flag.ContinueOnError)
	preset := fs.String("preset", "default", "hyperparameter preset: default or tiny")
	dataDir := fs.String("data", "", "directory of .txt training files")
	outPath := fs.String("out", "", "where to write the generated text")
	iters := fs.Int("iters", 0, "optimizer steps")
	seed := fs.Uint64("seed", 0, "random seed")
	device := fs.String("device", "", "auto, cpu or blas")
	workers := fs.Int("workers", 0, "batch rows processed concurrently")
	tokens := fs.Int("tokens", 0, "characters to generate after training")
	logCSV := fs.String("log-csv", "", "CSV loss log path (\"-\" disables)")
	logDB := fs.String("log-db", "", "SQLite loss log path")
	debug := fs.Bool("debug", false, "print debug lines to stderr")
	if err := fs.Parse(args); err != nil {
		return params.TrainingConfig{}, err
	}

	cfg, err := params.Preset(*preset)
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = *dataDir
		case "out":
			cfg.OutputPath = *outPath
		case "iters":
			cfg.MaxIters = *iters
		case "seed":
			cfg.Seed = *seed
		case "device":
			cfg.Device = *device
		case "workers":
			cfg.Workers = *workers
		case "tokens":
			cfg.MaxNewTokens = *tokens
		case "log-csv":
			cfg.LogCSV = *logCSV
			if cfg.LogCSV == "-" {
				cfg.LogCSV = ""
			}
		case "log-db":
			cfg.LogDB = *logDB
		case "debug":
			cfg.Debug = *debug
		}
	})
	return cfg, cfg.Validate()
}

func run(cfg params.TrainingConfig, stdout io.Writer) (err error) {
	t1 := time.Now()

	device, err := utils.SelectDevice(cfg.Device)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Device: %s\n", device)

	text, err := IO.ReadCorpus(cfg.DataDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Length of dataset in characters: %d\n", utf8.RuneCountInString(text))

	vocab := IO.BuildVocabulary(text)
	fmt.Fprintf(stdout, "Available characters: %s, vocabulary size: %d\n", vocab, vocab.Size())

	data, err := vocab.Encode(text)
	if err != nil {
		return err
	}
	train, val := IO.Split(data, cfg.TrainFrac)

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	model, err := transformer.New(cfg, vocab.Size(), rng)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%.2f M parameters\n", float64(model.NumParams())/1e6)

	recs, err := runlog.Open(cfg.LogCSV, cfg.LogDB)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := runlog.CloseAll(recs); err == nil {
			err = cerr
		}
	}()
	opts := []trainer.Option{trainer.WithOutput(stdout)}
	for _, r := range recs {
		opts = append(opts, trainer.WithRecorder(r))
	}

	tr, err := trainer.New(model, optimizations.NewAdamW(cfg), train, val, cfg, rng, opts...)
	if err != nil {
		return err
	}
	reports, err := tr.Run()
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}
	trainer.PlotLosses(stdout, reports)

	// seed generation with id 0, the smallest character in the vocabulary
	ids, err := model.Generate([]int{0}, cfg.MaxNewTokens, rng)
	if err != nil {
		return err
	}
	generated, err := vocab.Decode(ids)
	if err != nil {
		return err
	}
	if err := IO.WriteOutput(cfg.OutputPath, generated); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d characters to %s\n", len(ids), cfg.OutputPath)
	fmt.Fprintf(stdout, "Time taken: %s\n", time.Since(t1))
	return nil
}

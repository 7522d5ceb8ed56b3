package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/framelab/framelab/pkg/anno"
	"github.com/framelab/framelab/pkg/infer"
	"github.com/framelab/framelab/server/annotator"
	"github.com/framelab/framelab/server/rundb"
	"github.com/joho/godotenv"
)

// framelab runs a directory of images through a vision model and writes the
// annotation record log plus the derived datasets.
//
// Flags override environment variables, and a .env file in the working
// directory is loaded first, so a run can be configured entirely from a file.

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	parser := argparse.NewParser("framelab", "Annotate a directory of images with a vision model and build datasets")
	input := parser.String("i", "input", &argparse.Options{Help: "Directory of input images", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output directory", Required: false, Default: envString("FRAMELAB_OUTPUT_DIR", "output")})
	schemaFile := parser.String("s", "schema", &argparse.Options{Help: "JSON schema file listing the items to annotate", Required: true})
	promptFile := parser.String("p", "prompt", &argparse.Options{Help: "Prompt text file sent with every frame", Required: true})
	model := parser.String("m", "model", &argparse.Options{Help: "Vision model name", Required: false, Default: envString("FRAMELAB_MODEL", "gemini-2.0-flash")})
	maxTokens := parser.Int("", "maxtokens", &argparse.Options{Help: "Max output tokens per reply", Required: false, Default: envInt("FRAMELAB_MAX_TOKENS", 1000)})
	temperature := parser.Float("", "temperature", &argparse.Options{Help: "Model sampling temperature", Required: false, Default: envFloat("FRAMELAB_TEMPERATURE", 0.1)})
	maxImageSize := parser.Int("", "maximagesize", &argparse.Options{Help: "Longest image side sent to the model, in pixels", Required: false, Default: envInt("FRAMELAB_MAX_IMAGE_SIZE", 512)})
	threshold := parser.Float("t", "threshold", &argparse.Options{Help: "Present/absent confidence gate", Required: false, Default: envFloat("FRAMELAB_CONFIDENCE_THRESHOLD", 0.9)})
	saveFrames := parser.Flag("", "saveframes", &argparse.Options{Help: "Save a JPEG per frame next to the record log", Required: false, Default: envBool("FRAMELAB_SAVE_FRAMES", false)})
	noOps := parser.Flag("", "noops", &argparse.Options{Help: "Skip model calls and record empty annotations (pipeline dry run)", Required: false, Default: envBool("FRAMELAB_NO_OPS", false)})
	recursive := parser.Flag("r", "recursive", &argparse.Options{Help: "Recurse into input subdirectories", Required: false, Default: envBool("FRAMELAB_RECURSIVE", false)})
	balance := parser.Flag("b", "balance", &argparse.Options{Help: "Also write the balanced binary datasets", Required: false, Default: false})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Concurrent inference calls", Required: false, Default: 1})
	runsFile := parser.String("", "runs", &argparse.Options{Help: "Sqlite run index. Empty = <output>/runs.sqlite", Required: false, Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()
	ctx := context.Background()

	schema, err := anno.LoadSchemaFile(*schemaFile)
	check(err)
	promptText, err := os.ReadFile(*promptFile)
	check(err)

	var svc infer.Service
	if *noOps {
		svc = &infer.NoOp{}
		logger.Infof("No-ops mode: model calls are skipped")
	} else {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			check(fmt.Errorf("GEMINI_API_KEY is not set (and --noops was not given)"))
		}
		svc, err = infer.NewGemini(ctx, apiKey, infer.Config{
			Model:       *model,
			MaxTokens:   *maxTokens,
			Temperature: float32(*temperature),
		})
		check(err)
	}

	check(os.MkdirAll(*output, 0770))

	ann, err := annotator.NewAnnotator(logger, svc, annotator.Options{
		OutputDir:           *output,
		Prompt:              string(promptText),
		Schema:              schema,
		ConfidenceThreshold: float32(*threshold),
		MaxImageSize:        *maxImageSize,
		SaveFrames:          *saveFrames,
		Balance:             *balance,
		Workers:             *workers,
	})
	check(err)
	defer ann.Close()

	if *runsFile == "" {
		*runsFile = filepath.Join(*output, "runs.sqlite")
	}
	runs, err := rundb.Open(logger, *runsFile)
	check(err)
	promptHash := fmt.Sprintf("%x", sha256.Sum256(promptText))
	run, err := runs.StartRun(svc.Model(), *output, promptHash, schema.Items(), *threshold)
	check(err)

	source := &annotator.DirectorySource{
		Root:      *input,
		Recursive: *recursive,
		Log:       logger,
	}
	runErr := ann.Run(ctx, source)
	if runErr != nil {
		logger.Errorf("Annotation run failed: %v", runErr)
	}
	check(ann.Finalize())

	check(runs.FinishRun(run.ID, rundb.Counters{
		Frames:            ann.Stats.FramesProcessed.Load(),
		ParseFallbacks:    ann.Stats.ParseFallbacks.Load(),
		GeometryDrops:     ann.Stats.GeometryDrops.Load(),
		InferenceFailures: ann.Stats.InferenceFailures.Load(),
	}))

	logger.Infof("Run complete: %v frames, %v parse fallbacks, %v geometry drops, %v inference failures",
		ann.Stats.FramesProcessed.Load(), ann.Stats.ParseFallbacks.Load(),
		ann.Stats.GeometryDrops.Load(), ann.Stats.InferenceFailures.Load())
	if runErr != nil {
		os.Exit(1)
	}
}

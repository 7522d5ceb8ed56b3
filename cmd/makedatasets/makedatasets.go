package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/framelab/framelab/pkg/anno"
	"github.com/framelab/framelab/pkg/dataset"
)

// makedatasets rebuilds the dataset artifacts from an existing record log,
// without touching the vision model. Useful for re-gating with a different
// confidence threshold, or for balancing a directory that was annotated
// without --balance.

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("makedatasets", "Rebuild dataset artifacts from an existing record log")
	dir := parser.String("d", "dir", &argparse.Options{Help: "Run output directory containing " + dataset.LabelsFilename, Required: true})
	schemaFile := parser.String("s", "schema", &argparse.Options{Help: "JSON schema file. Empty = derive the class list from the record log", Required: false, Default: ""})
	threshold := parser.Float("t", "threshold", &argparse.Options{Help: "Present/absent confidence gate", Required: false, Default: float64(dataset.DefaultConfidenceThreshold)})
	analyze := parser.Flag("a", "analyze", &argparse.Options{Help: "Print a suggested threshold from the confidence distribution and exit", Required: false})
	balanceOnly := parser.Flag("", "balanceonly", &argparse.Options{Help: "Balance the existing binary datasets on disk, skip everything else", Required: false})
	noBalance := parser.Flag("", "nobalance", &argparse.Options{Help: "Skip the balanced binary datasets", Required: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	if *balanceOnly {
		sets, order, err := dataset.ReadBinary(filepath.Join(*dir, dataset.BinaryDirName))
		check(err)
		balanced := dataset.Balance(sets, order)
		for _, note := range balanced.Notes {
			logger.Warnf("%v", note)
		}
		check(dataset.WriteBinary(filepath.Join(*dir, dataset.BinaryBalancedDirName), balanced.Sets, order))
		logger.Infof("Balanced %v classes at %v per side", len(balanced.Sets), balanced.Count)
		return
	}

	records, err := dataset.LoadRecords(filepath.Join(*dir, dataset.LabelsFilename))
	check(err)
	if len(records) == 0 {
		check(fmt.Errorf("No records in '%v'", *dir))
	}

	if *analyze {
		suggested, explain := dataset.AnalyzeConfidence(records)
		fmt.Printf("%v\n", explain)
		fmt.Printf("Re-run with --threshold %v to apply it\n", suggested)
		return
	}

	var schema *anno.Schema
	if *schemaFile != "" {
		schema, err = anno.LoadSchemaFile(*schemaFile)
		check(err)
	} else {
		schema = anno.SchemaFromRecordKeys(dataset.RecordKeys(records))
	}

	gate := float32(*threshold)
	logger.Infof("Rebuilding datasets from %v records, %v classes, threshold %v", len(records), len(schema.Items()), gate)

	binary := dataset.BuildBinary(records, schema, gate)
	check(dataset.WriteBinary(filepath.Join(*dir, dataset.BinaryDirName), binary, schema.Items()))

	diags := dataset.CountDiagnostics(records)
	summary := &dataset.Summary{
		TotalFrames:         len(records),
		Classes:             schema.Items(),
		ConfidenceThreshold: gate,
		BinaryEntries:       len(records) * len(schema.Items()),
		InferenceFailures:   diags.InferenceFailures,
		ParseFallbacks:      diags.ParseFallbacks,
		GeometryDrops:       diags.GeometryDrops,
	}

	if !*noBalance {
		balanced := dataset.Balance(binary, schema.Items())
		for _, note := range balanced.Notes {
			logger.Warnf("%v", note)
		}
		check(dataset.WriteBinary(filepath.Join(*dir, dataset.BinaryBalancedDirName), balanced.Sets, schema.Items()))
		summary.BalancedPerSide = balanced.Count
		summary.Notes = balanced.Notes
	}

	// A schema rebuilt from record keys doesn't know whether the run was a
	// detection task, so also look for boxes in the records themselves.
	isDetection := schema.HasBBox()
	if !isDetection {
	scan:
		for i := range records {
			for _, a := range records[i].Labels {
				if a.BBox != nil {
					isDetection = true
					break scan
				}
			}
		}
	}
	if isDetection {
		detection := dataset.BuildDetection(records, schema, gate)
		check(dataset.WriteCOCO(filepath.Join(*dir, dataset.DetectionDirName), detection))
		summary.DetectionBoxes = len(detection.Annotations)
	}

	multilabel := dataset.BuildMultilabel(records, schema, gate)
	check(dataset.WriteCOCO(filepath.Join(*dir, dataset.MultilabelDirName), multilabel))
	summary.MultilabelBoxes = len(multilabel.Annotations)

	check(dataset.WriteSummary(*dir, summary))
	logger.Infof("Done")
}

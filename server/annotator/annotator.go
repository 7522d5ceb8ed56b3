package annotator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/framelab/framelab/pkg/anno"
	"github.com/framelab/framelab/pkg/dataset"
	"github.com/framelab/framelab/pkg/infer"
)

// Package annotator drives the per-frame pipeline: image in, vision model
// reply out, validated record appended to the run's log. On Finalize the
// accumulated log is turned into the dataset artifacts.

// Options is the run context. Everything the pipeline needs is in here;
// there is no process-global state.
type Options struct {
	OutputDir           string
	Prompt              string // prompt text sent with every frame
	Schema              *anno.Schema
	ConfidenceThreshold float32 // present/absent gate, 0..1. A zero gate counts every present verdict
	MaxImageSize        int     // longest image side sent to the model, in pixels. 0 = unbounded
	SaveFrames          bool    // save a JPEG per frame next to the record log
	Balance             bool    // also write the balanced binary datasets
	Workers             int     // concurrent inference calls. 0 or 1 = sequential
}

// Stats are the pipeline's diagnostic counters. A fallback is never silent:
// it lands both here and in the record's diagnostic field.
type Stats struct {
	FramesProcessed   atomic.Int64
	ParseFallbacks    atomic.Int64
	GeometryDrops     atomic.Int64
	InferenceFailures atomic.Int64
}

type Annotator struct {
	Stats Stats

	log     logs.Log
	svc     infer.Service
	opts    Options
	recLog  *dataset.RecordLog
	nextSeq atomic.Int64
}

// NewAnnotator opens (or resumes) a run in opts.OutputDir.
func NewAnnotator(logger logs.Log, svc infer.Service, opts Options) (*Annotator, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("No output schema configured")
	}
	if opts.Prompt == "" {
		return nil, fmt.Errorf("No prompt configured")
	}
	if opts.ConfidenceThreshold < 0 || opts.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("Confidence threshold %v is outside 0..1", opts.ConfidenceThreshold)
	}
	recLog, err := dataset.OpenRecordLog(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	a := &Annotator{
		log:    logger,
		svc:    svc,
		opts:   opts,
		recLog: recLog,
	}
	a.nextSeq.Store(int64(recLog.Len()))
	return a, nil
}

// ProcessFrame runs one image through the pipeline. The frame is always
// recorded: inference failures, unparsable replies and bad geometry degrade
// to schema defaults with a diagnostic, never to a missing record, so frame
// counts downstream stay consistent with the number of inputs.
//
// Safe to call concurrently; the record append is the only serialized step.
func (a *Annotator) ProcessFrame(ctx context.Context, frameID string, img *cimg.Image) error {
	img = a.resize(img)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	if err != nil {
		return fmt.Errorf("Failed to encode frame '%v': %w", frameID, err)
	}

	result, inferErr := a.svc.Infer(ctx, jpg, a.opts.Prompt)
	if inferErr != nil {
		a.Stats.InferenceFailures.Add(1)
		a.log.Warnf("Inference failed on frame '%v': %v", frameID, inferErr)
		// Treated as an empty reply: the frame is still recorded below.
		result.Text = ""
	}

	diagnostic := ""
	var annotations anno.Annotations
	parsed, parseErr := anno.ExtractJSON(result.Text)
	if parseErr != nil {
		annotations = a.opts.Schema.Defaults()
		// A failed inference trivially yields nothing parsable, so it counts
		// once, as an inference failure, not again as a parse fallback.
		if inferErr != nil {
			diagnostic = fmt.Sprintf("%v: %v", dataset.DiagnosticInferenceFailed, inferErr)
		} else {
			a.Stats.ParseFallbacks.Add(1)
			diagnostic = fmt.Sprintf("%v: %v", dataset.DiagnosticParseFailed, parseErr)
		}
	} else {
		annotations = anno.Reconcile(a.opts.Schema, parsed)
		drops := 0
		for name, item := range annotations {
			normalized := anno.Normalize(item)
			if item.BBox != nil && normalized.BBox == nil {
				drops++
			}
			annotations[name] = normalized
		}
		if drops > 0 {
			a.Stats.GeometryDrops.Add(int64(drops))
			diagnostic = fmt.Sprintf("%v %v malformed bounding box(es)", dataset.DiagnosticGeometryDrop, drops)
		}
	}

	seq := a.nextSeq.Add(1) - 1
	now := time.Now()
	filename := fmt.Sprintf("frame_%06d_%v.jpg", seq, now.Unix())

	if a.opts.SaveFrames {
		if err := os.WriteFile(filepath.Join(a.opts.OutputDir, filename), jpg, 0660); err != nil {
			// Losing the image file is bad, losing the record is worse.
			a.log.Errorf("Failed to save frame image '%v': %v", filename, err)
		}
	}

	rec := dataset.FrameRecord{
		Image:          filename,
		Labels:         annotations,
		Usage:          result.Usage,
		FrameID:        frameID,
		Width:          img.Width,
		Height:         img.Height,
		Model:          a.svc.Model(),
		ProcessingTime: result.ProcessingTime,
		Timestamp:      float64(now.UnixNano()) / 1e9,
		Diagnostic:     diagnostic,
	}
	if err := a.recLog.Append(rec); err != nil {
		return err
	}
	a.Stats.FramesProcessed.Add(1)
	return nil
}

// Run feeds every frame of the source through ProcessFrame, with up to
// Workers concurrent inference calls. Record order in the log is completion
// order; the log itself guarantees no interleaved writes.
func (a *Annotator) Run(ctx context.Context, source Source) error {
	workers := a.opts.Workers
	if workers < 1 {
		workers = 1
	}
	frames := make(chan Frame)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range frames {
				if err := a.ProcessFrame(ctx, frame.ID, frame.Image); err != nil {
					errOnce.Do(func() { firstErr = err })
				}
			}
		}()
	}

	err := source.Frames(ctx, frames)
	close(frames)
	wg.Wait()
	if err != nil {
		return err
	}
	return firstErr
}

// Finalize exports every dataset artifact from a consistent snapshot of the
// record log. An IO failure on one artifact does not abort the others; the
// first error is returned after all artifacts were attempted.
func (a *Annotator) Finalize() error {
	records := a.recLog.Snapshot()
	schema := a.opts.Schema
	threshold := a.opts.ConfidenceThreshold
	a.log.Infof("Finalizing run: %v records, threshold %v", len(records), threshold)

	var firstErr error
	keep := func(err error) {
		if err != nil {
			a.log.Errorf("%v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	binary := dataset.BuildBinary(records, schema, threshold)
	keep(dataset.WriteBinary(filepath.Join(a.opts.OutputDir, dataset.BinaryDirName), binary, schema.Items()))

	diags := dataset.CountDiagnostics(records)
	summary := &dataset.Summary{
		TotalFrames:         len(records),
		Classes:             schema.Items(),
		ConfidenceThreshold: threshold,
		BinaryEntries:       len(records) * len(schema.Items()),
		InferenceFailures:   diags.InferenceFailures,
		ParseFallbacks:      diags.ParseFallbacks,
		GeometryDrops:       diags.GeometryDrops,
	}

	if a.opts.Balance {
		balanced := dataset.Balance(binary, schema.Items())
		keep(dataset.WriteBinary(filepath.Join(a.opts.OutputDir, dataset.BinaryBalancedDirName), balanced.Sets, schema.Items()))
		summary.BalancedPerSide = balanced.Count
		summary.Notes = balanced.Notes
		for _, note := range balanced.Notes {
			a.log.Warnf("%v", note)
		}
	}

	if schema.HasBBox() {
		detection := dataset.BuildDetection(records, schema, threshold)
		keep(dataset.WriteCOCO(filepath.Join(a.opts.OutputDir, dataset.DetectionDirName), detection))
		summary.DetectionBoxes = len(detection.Annotations)
	}

	multilabel := dataset.BuildMultilabel(records, schema, threshold)
	keep(dataset.WriteCOCO(filepath.Join(a.opts.OutputDir, dataset.MultilabelDirName), multilabel))
	summary.MultilabelBoxes = len(multilabel.Annotations)

	keep(dataset.WriteSummary(a.opts.OutputDir, summary))
	return firstErr
}

// Close closes the record log. The Annotator must not be used afterwards.
func (a *Annotator) Close() error {
	return a.recLog.Close()
}

// Records returns a snapshot of the records appended so far.
func (a *Annotator) Records() []dataset.FrameRecord {
	return a.recLog.Snapshot()
}

// resize scales the image down so its longest side is MaxImageSize, which
// keeps model cost bounded roughly independently of camera resolution.
func (a *Annotator) resize(img *cimg.Image) *cimg.Image {
	maxSize := a.opts.MaxImageSize
	if maxSize <= 0 || (img.Width <= maxSize && img.Height <= maxSize) {
		return img
	}
	scale := float64(maxSize) / float64(max(img.Width, img.Height))
	newWidth := int(float64(img.Width)*scale + 0.5)
	newHeight := int(float64(img.Height)*scale + 0.5)
	return cimg.ResizeNew(img, newWidth, newHeight, nil)
}

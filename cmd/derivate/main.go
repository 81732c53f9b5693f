// Command derivate produces digital derivatives (scaled/branded images, a
// searchable PDF/A, and an enriched METS file) for a directory of digitised
// page images. Configuration is a JSON file; no CLI framework appears
// anywhere in the retrieval pack, so flags are parsed with the standard
// library, the same grounded choice SPEC_FULL.md records for config
// loading.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/archivian/derivate/alto"
	"github.com/archivian/derivate/compliance/pdfa"
	"github.com/archivian/derivate/config"
	"github.com/archivian/derivate/derrors"
	"github.com/archivian/derivate/footer"
	"github.com/archivian/derivate/imaging"
	"github.com/archivian/derivate/mets"
	"github.com/archivian/derivate/observability"
	"github.com/archivian/derivate/pdfcompose"
	"github.com/archivian/derivate/pipeline"
	"github.com/archivian/derivate/resources"
	"github.com/archivian/derivate/runplan"
)

func main() {
	configPath := flag.String("config", "", "path to run configuration (JSON)")
	flag.Parse()

	logger := stderrLogger{}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "derivate: -config is required")
		os.Exit(2)
	}

	if err := run(*configPath, logger); err != nil {
		logger.Error("run failed", observability.Error("err", err))
		os.Exit(1)
	}
}

func run(configPath string, logger observability.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := mets.Load(cfg.METSPath)
	if err != nil {
		return err
	}

	desc, err := store.DescriptiveData()
	if err != nil {
		return err
	}

	pages, err := store.Pages()
	if err != nil {
		return err
	}
	structure, err := store.BuildStructureTree(desc.Title, true)
	if err != nil {
		logger.Warn("no logical structure map, proceeding without an outline", observability.Error("err", err))
		structure = nil
	}

	plan, err := runplan.Build(cfg, cfg.WorkDir)
	if err != nil {
		return err
	}

	r := &runner{cfg: cfg, store: store, desc: desc, structure: structure, logger: logger}
	dir := cfg.InputDir
	for _, step := range plan.Steps() {
		logger.Info("running step", observability.String("kind", step.Kind.String()), observability.String("input", dir))
		if err := r.runStep(step, pages); err != nil {
			return derrors.E(derrors.Unknown, "derivate.run", fmt.Errorf("step %s: %w", step.Kind, err))
		}
		dir = step.OutputDir
	}
	return nil
}

type runner struct {
	cfg       *config.RunConfig
	store     *mets.Store
	desc      *mets.DescriptiveData
	structure *mets.StructureNode
	logger    observability.Logger
}

func (r *runner) runStep(step runplan.DerivateStep, pages []mets.DigitalPage) error {
	switch step.Kind {
	case runplan.ImageCopy, runplan.ImageScale:
		return r.runImageStep(step, pages, nil)
	case runplan.ImageFooter, runplan.ImageFooterGranular:
		width, err := firstPageWidth(pages)
		if err != nil {
			return err
		}
		fr := footer.NewRenderer(r.cfg.FooterTemplate, width, r.logger)
		return r.runImageStep(step, pages, fr)
	case runplan.Pdf:
		return r.runPdfStep(step, pages)
	case runplan.Enrich:
		return r.runEnrichStep(step)
	default:
		return fmt.Errorf("unhandled step kind %s", step.Kind)
	}
}

// runImageStep re-encodes every page's image into step.OutputDir, optionally
// scaling to Maximal and appending a footer band. Pages run in parallel on a
// bounded pool; the step is a barrier (all pages complete before the next
// step starts).
func (r *runner) runImageStep(step runplan.DerivateStep, pages []mets.DigitalPage, fr *footer.Renderer) error {
	if err := os.MkdirAll(step.OutputDir, 0o755); err != nil {
		return err
	}
	pool := pipeline.NewPool(step.PoolSize)

	tasks := make([]func(context.Context) error, len(pages))
	for i := range pages {
		page := &pages[i]
		tasks[i] = func(ctx context.Context) error {
			return r.processImagePage(step, page, fr)
		}
	}
	return pool.Run(context.Background(), tasks)
}

func firstPageWidth(pages []mets.DigitalPage) (int, error) {
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages to derive footer width from")
	}
	img, _, err := imaging.ReadWithMetadata(pages[0].ImagePath)
	if err != nil {
		return 0, err
	}
	return img.Bounds().Dx(), nil
}

func (r *runner) processImagePage(step runplan.DerivateStep, page *mets.DigitalPage, fr *footer.Renderer) error {
	img, meta, err := imaging.ReadWithMetadata(page.ImagePath)
	if err != nil {
		return err
	}

	if step.Maximal > 0 {
		img = imaging.HandleMaximal(img, step.Maximal)
	}

	footerHeight := 0
	if fr != nil {
		granular := ""
		if step.Kind == runplan.ImageFooterGranular {
			granular = page.GranularURN
		}
		band := fr.RenderForPage(granular, img.Bounds().Dx())
		composed, h, err := footer.Compose(img, band)
		if err != nil {
			return derrors.E(derrors.ImageError, "derivate.processImagePage", err)
		}
		img = composed
		footerHeight = h
	}

	outPath := filepath.Join(step.OutputDir, filepath.Base(page.ImagePath))
	outPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".jpg"
	if err := imaging.WriteJPEG(img, outPath, step.Quality, meta); err != nil {
		return err
	}

	page.ImagePath = outPath
	page.FooterHeight = footerHeight
	return nil
}

func (r *runner) runPdfStep(step runplan.DerivateStep, pages []mets.DigitalPage) error {
	if err := os.MkdirAll(step.OutputDir, 0o755); err != nil {
		return err
	}

	sorted := make([]mets.DigitalPage, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	composePages := make([]pdfcompose.Page, len(sorted))
	for i, p := range sorted {
		var ocr *alto.OcrPage
		altoPath := strings.TrimSuffix(p.ImagePath, filepath.Ext(p.ImagePath)) + ".xml"
		if data, err := os.ReadFile(altoPath); err == nil {
			parsed, err := alto.Parse(data)
			if err != nil {
				return derrors.E(derrors.ParseError, "derivate.runPdfStep", err)
			}
			img, _, err := imaging.ReadWithMetadata(p.ImagePath)
			if err == nil {
				bounds := img.Bounds()
				if bounds.Dx() > 0 && parsed.PageWidth > 0 {
					parsed.Scale(float64(bounds.Dx()) / float64(parsed.PageWidth))
				}
			}
			ocr = parsed
		}
		composePages[i] = pdfcompose.Page{ImagePath: p.ImagePath, FooterHeight: p.FooterHeight, OCR: ocr}
	}

	opts := pdfcompose.Options{ToolLabel: resources.ToolLabel(), EmbeddedFontPath: r.cfg.EmbeddedFont}
	if step.PDFConformance != "" {
		level, err := parseConformance(step.PDFConformance)
		if err != nil {
			return err
		}
		lvl := level
		opts.Conformance = &lvl
	}

	outPath := filepath.Join(step.OutputDir, r.desc.Identifier+".pdf")
	ok, err := pdfcompose.Compose(outPath, composePages, r.desc, r.structure, opts)
	if err != nil {
		return err
	}
	if !ok {
		return derrors.E(derrors.PdfError, "derivate.runPdfStep", fmt.Errorf("pdf composition reported incomplete result"))
	}
	return nil
}

func (r *runner) runEnrichStep(step runplan.DerivateStep) error {
	if err := r.store.EnrichPDF(r.desc.Identifier, resources.ToolLabel(), time.Now().UTC()); err != nil {
		return err
	}
	data, err := r.store.Document().Serialize()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(step.OutputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(step.OutputDir, filepath.Base(r.cfg.METSPath)), data, 0o644)
}

func parseConformance(s string) (pdfa.Level, error) {
	switch strings.ToUpper(s) {
	case "1B", "A1B", "PDFA1B":
		return pdfa.PDFA1B, nil
	default:
		return 0, fmt.Errorf("unsupported pdf conformance %q", s)
	}
}

type stderrLogger struct{}

func (stderrLogger) Debug(msg string, fields ...observability.Field) { logLine("DEBUG", msg, fields) }
func (stderrLogger) Info(msg string, fields ...observability.Field)  { logLine("INFO", msg, fields) }
func (stderrLogger) Warn(msg string, fields ...observability.Field)  { logLine("WARN", msg, fields) }
func (stderrLogger) Error(msg string, fields ...observability.Field) { logLine("ERROR", msg, fields) }
func (l stderrLogger) With(fields ...observability.Field) observability.Logger { return l }

func logLine(level, msg string, fields []observability.Field) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", time.Now().UTC().Format(time.RFC3339), level, msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(os.Stderr, b.String())
}

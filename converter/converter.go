// Package converter routes a conversion request through decoding,
// transcoding and assembly, and renders its outcome.
package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tiffconv/assembler"
	"tiffconv/contracts"
	"tiffconv/document"
	"tiffconv/metrics"
	"tiffconv/report"
	"tiffconv/storage"
	"tiffconv/transcoder"
)

// DocumentLoader decodes input bytes into pages.
type DocumentLoader interface {
	Load(data []byte) (*document.Source, error)
}

type Options struct {
	Engine assembler.Engine
	// DetailThreshold is the page count up to which success reports list
	// every page. Negative selects the report default.
	DetailThreshold int
	// Workers transcoding pages in parallel; 1 keeps the pipeline sequential.
	Workers int
	// VerifyOutput reads every PDF back and checks its page count.
	VerifyOutput bool
}

type Converter struct {
	loader     DocumentLoader
	transcoder *transcoder.Transcoder
	opts       Options
}

var _ contracts.Converter = (*Converter)(nil)

func New(loader DocumentLoader, tr *transcoder.Transcoder, opts Options) *Converter {
	if tr == nil {
		tr = transcoder.New(nil)
	}
	if opts.Engine == "" {
		opts.Engine = assembler.EngineNative
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Converter{loader: loader, transcoder: tr, opts: opts}
}

// run is the state of one invocation.
type run struct {
	c      *Converter
	id     string
	state  State
	start  time.Time
	req    contracts.ConversionRequest
	format contracts.OutputFormat
	rep    *report.Builder
	log    zerolog.Logger

	src       *document.Source
	inputSize int
	converted int
}

func (c *Converter) newRun(req contracts.ConversionRequest) *run {
	id := uuid.NewString()
	return &run{
		c:     c,
		id:    id,
		state: Validating,
		start: time.Now(),
		req:   req,
		rep:   report.NewBuilder(id, c.opts.DetailThreshold),
		log:   log.With().Str("conversion_id", id).Logger(),
	}
}

func (r *run) enter(s State, format string, args ...any) {
	if !canTransition(r.state, s) {
		// programming error; surfaces in the trace of the failure that follows
		r.rep.Trace(r.state.String(), "illegal transition to %s", s)
	}
	r.state = s
	msg := fmt.Sprintf(format, args...)
	r.rep.Trace(s.String(), "%s", msg)
	r.log.Debug().Str("state", s.String()).Msg(msg)
}

// Convert converts source into the container named by req.
func (c *Converter) Convert(ctx context.Context, source []byte, req contracts.ConversionRequest) contracts.ConversionOutcome {
	r := c.newRun(req)
	r.rep.Trace(Validating.String(), "format=%q quality=%d compress=%t", req.OutputFormat, req.Quality, req.Compress)
	format, err := req.Validate()
	if err != nil {
		return r.fail(err)
	}
	r.format = format

	out, err := r.pipeline(ctx, source)
	if err != nil {
		return r.fail(err)
	}
	return r.done(out)
}

// ConvertObject fetches the source object, converts it and stores the result
// under DestKey. Request fields are validated before anything is fetched.
func (c *Converter) ConvertObject(ctx context.Context, store storage.Store, req contracts.ObjectRequest) contracts.ConversionOutcome {
	r := c.newRun(req.ConversionRequest)
	r.rep.Trace(Validating.String(), "bucket=%q source=%q dest=%q format=%q quality=%d compress=%t",
		req.Bucket, req.SourceKey, req.DestKey, req.OutputFormat, req.Quality, req.Compress)
	format, err := req.Validate()
	if err != nil {
		return r.fail(err)
	}
	r.format = format

	r.rep.Trace("fetching", "%s/%s", req.Bucket, req.SourceKey)
	data, err := store.Fetch(ctx, req.Bucket, req.SourceKey)
	if err != nil {
		return r.fail(contracts.NewError(contracts.KindCollaborator, "fetching", err))
	}

	out, err := r.pipeline(ctx, data)
	if err != nil {
		return r.fail(err)
	}

	r.rep.Trace("storing", "%s/%s (%d bytes, %s)", req.Bucket, req.DestKey, len(out.OutputBytes), out.ContentType)
	if err := store.Put(ctx, req.Bucket, req.DestKey, out.OutputBytes, out.ContentType); err != nil {
		return r.fail(contracts.NewError(contracts.KindCollaborator, "storing", err))
	}
	return r.done(out)
}

func (r *run) pipeline(ctx context.Context, source []byte) (contracts.ConversionOutcome, error) {
	r.inputSize = len(source)
	r.enter(Decoding, "%d input bytes", len(source))
	if err := ctx.Err(); err != nil {
		return contracts.ConversionOutcome{}, canceled(err)
	}
	src, err := r.c.loader.Load(source)
	if err != nil {
		return contracts.ConversionOutcome{}, err
	}
	if src == nil || src.PageCount() == 0 {
		return contracts.ConversionOutcome{}, contracts.NewError(contracts.KindFormat, Decoding.String(), errors.New("document has no pages"))
	}
	r.src = src
	defer src.Release()
	if src.FallbackReason != "" {
		r.rep.Trace(Decoding.String(), "secondary decoder used: %s", src.FallbackReason)
	}
	r.rep.Trace(Decoding.String(), "%d pages via %s decoder", src.PageCount(), src.Decoder)

	var output []byte
	switch {
	case r.format == contracts.RasterSingle:
		r.enter(SinglePage, "transcoding page 0 of %d with %s encoder", src.PageCount(), r.c.transcoder.Encoder().Name())
		output, err = r.singlePage()
	case !r.req.Compress:
		r.enter(MultiPageRaw, "embedding %d pages losslessly", src.PageCount())
		output, err = r.multiPage(ctx, false)
	default:
		r.enter(MultiPageCompressed, "transcoding %d pages at quality %d with %s encoder", src.PageCount(), r.req.Quality, r.c.transcoder.Encoder().Name())
		output, err = r.multiPage(ctx, true)
	}
	if err != nil {
		return contracts.ConversionOutcome{}, err
	}

	r.enter(Reporting, "%d pages, %d output bytes", r.converted, len(output))
	agg := r.rep.Aggregate()
	return contracts.ConversionOutcome{
		Success:        true,
		Message:        r.message(agg),
		PagesConverted: r.converted,
		OutputBytes:    output,
		ContentType:    r.format.ContentType(),
		Report: r.rep.Success(report.Summary{
			Format:         r.format.String(),
			Compressed:     r.req.Compress,
			Quality:        r.req.Quality,
			SourcePages:    src.PageCount(),
			PagesConverted: r.converted,
			Decoder:        src.Decoder.String(),
			InputBytes:     r.inputSize,
			OutputBytes:    len(output),
		}),
		Stats: stats(agg),
	}, nil
}

func (r *run) singlePage() ([]byte, error) {
	page := r.src.Pages[0]
	enc, err := r.c.transcoder.Transcode(page, r.req.Quality)
	// the remaining pages are never decoded
	r.src.Release()
	if err != nil {
		return nil, err
	}
	r.fold(enc.PageIndex, enc.Uncompressed, len(enc.ImgBuffer))

	r.enter(Assembling, "writing single JPEG")
	out, err := assembler.Raster(enc)
	if err != nil {
		return nil, err
	}
	r.converted = 1
	return out, nil
}

func (r *run) multiPage(ctx context.Context, compress bool) ([]byte, error) {
	doc, err := assembler.NewDocument(r.c.opts.Engine)
	if err != nil {
		return nil, contracts.NewError(contracts.KindAssembly, Assembling.String(), err)
	}

	if compress {
		pool := transcoder.NewPool(r.c.transcoder, r.c.opts.Workers)
		err = pool.Run(ctx, r.src.Pages, r.req.Quality, func(enc contracts.EncodedPage) error {
			n, err := doc.AddEncoded(enc)
			if err != nil {
				return err
			}
			r.fold(enc.PageIndex, enc.Uncompressed, n)
			return nil
		})
	} else {
		err = r.embedRaw(ctx, doc)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, canceled(err)
		}
		return nil, err
	}

	r.enter(Assembling, "finishing %d pages with %s engine", doc.Pages(), r.c.opts.Engine)
	out, err := doc.Finish()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, contracts.NewError(contracts.KindAssembly, Assembling.String(), assembler.ErrEmptyOutput)
	}
	if doc.Pages() != r.src.PageCount() {
		return nil, contracts.NewError(contracts.KindAssembly, Assembling.String(),
			fmt.Errorf("container holds %d pages, source has %d", doc.Pages(), r.src.PageCount()))
	}
	if r.c.opts.VerifyOutput {
		if err := assembler.Verify(out, r.src.PageCount()); err != nil {
			return nil, err
		}
		r.rep.Trace(Assembling.String(), "verified %d pages", r.src.PageCount())
	}
	r.converted = doc.Pages()
	return out, nil
}

func (r *run) embedRaw(ctx context.Context, doc assembler.Document) error {
	for _, page := range r.src.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := page.Take()
		if err != nil {
			return contracts.NewPageError(contracts.KindFormat, MultiPageRaw.String(), page.Index, err)
		}
		n, err := doc.AddRaster(page.Index, img, page.DPIX, page.DPIY)
		if err != nil {
			return err
		}
		r.fold(page.Index, transcoder.RasterSize(img), n)
	}
	return nil
}

// fold traces each page while the report is detailed; past the threshold a
// single progress line names the last page folded.
func (r *run) fold(index int, uncompressed int64, compressed int) {
	r.rep.Fold(report.CompressionStat{Page: index, Uncompressed: uncompressed, Compressed: int64(compressed)})
	if r.rep.Mode() == report.Detailed {
		r.rep.Trace(r.state.String(), "page %d: %d -> %d bytes", index, uncompressed, compressed)
		return
	}
	agg := r.rep.Aggregate()
	r.rep.Progress(r.state.String(), "%d pages folded, last page %d: %d -> %d bytes", agg.Pages, index, uncompressed, compressed)
}

func (r *run) message(agg report.Aggregate) string {
	pages := r.src.PageCount()
	if r.format == contracts.RasterSingle {
		if pages > 1 {
			return fmt.Sprintf("Converted 1 of %d pages to JPEG: only the first page was used", pages)
		}
		return "Converted 1 page to JPEG"
	}
	if r.req.Compress {
		if agg.Compressed > agg.Uncompressed {
			return fmt.Sprintf("Converted %s to PDF, recompressed at quality %d (output %.1f%% larger)", pageCount(r.converted), r.req.Quality, -agg.Reduction())
		}
		return fmt.Sprintf("Converted %s to PDF, recompressed at quality %d (%.1f%% smaller)", pageCount(r.converted), r.req.Quality, agg.Reduction())
	}
	return fmt.Sprintf("Converted %s to PDF", pageCount(r.converted))
}

func pageCount(n int) string {
	if n == 1 {
		return "1 page"
	}
	return fmt.Sprintf("%d pages", n)
}

func (r *run) done(out contracts.ConversionOutcome) contracts.ConversionOutcome {
	r.enter(Done, "completed")
	elapsed := time.Since(r.start)
	out.Stats.Elapsed = elapsed

	metrics.ObserveConversion(r.format.String(), "success", elapsed)
	metrics.AddPages(r.format.String(), out.PagesConverted)
	metrics.AddBytes(r.inputSize, len(out.OutputBytes))

	r.log.Info().
		Str("format", r.format.String()).
		Int("pages", out.PagesConverted).
		Int("input_bytes", r.inputSize).
		Int("output_bytes", len(out.OutputBytes)).
		Dur("elapsed", elapsed).
		Msg(out.Message)
	return out
}

func (r *run) fail(err error) contracts.ConversionOutcome {
	stage := r.state.String()
	var ce *contracts.Error
	if errors.As(err, &ce) && ce.Stage != "" {
		stage = ce.Stage
	} else if ce == nil {
		err = contracts.NewError(contracts.KindFormat, stage, err)
	}
	kind, _ := contracts.KindOf(err)
	r.state = Failed
	elapsed := time.Since(r.start)

	format := r.format.String()
	if r.format == 0 {
		format = "invalid"
	}
	metrics.ObserveConversion(format, "failure", elapsed)
	metrics.IncFailure(string(kind))
	r.log.Error().Err(err).Str("stage", stage).Str("kind", string(kind)).Dur("elapsed", elapsed).Msg("conversion failed")

	agg := r.rep.Aggregate()
	return contracts.ConversionOutcome{
		Success: false,
		Message: err.Error(),
		Report:  r.rep.Failure(stage, err),
		Stats:   stats(agg),
	}
}

// canceled carries no stage so the failure is reported at the current state.
func canceled(err error) error {
	return contracts.NewError(contracts.KindCanceled, "", err)
}

func stats(a report.Aggregate) contracts.Stats {
	return contracts.Stats{
		Pages:             a.Pages,
		UncompressedBytes: a.Uncompressed,
		CompressedBytes:   a.Compressed,
		Elapsed:           a.Elapsed,
	}
}

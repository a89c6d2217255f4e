// Package report folds per-page compression figures into an aggregate and
// renders the two report shapes: a short success summary and a full failure
// trace.
package report

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDetailThreshold is the page count up to which success reports list
// every page.
const DefaultDetailThreshold = 10

type CompressionStat struct {
	Page         int
	Uncompressed int64
	Compressed   int64
}

type Aggregate struct {
	Pages        int
	Uncompressed int64
	Compressed   int64
	Elapsed      time.Duration
}

// Ratio is compressed over uncompressed bytes.
func (a Aggregate) Ratio() float64 {
	if a.Uncompressed <= 0 {
		return 0
	}
	return float64(a.Compressed) / float64(a.Uncompressed)
}

// Reduction is the share of bytes saved, in percent.
func (a Aggregate) Reduction() float64 {
	if a.Uncompressed <= 0 {
		return 0
	}
	return (1 - a.Ratio()) * 100
}

type Mode int

const (
	Detailed Mode = iota
	SummaryOnly
)

func (m Mode) String() string {
	if m == Detailed {
		return "detailed"
	}
	return "summary"
}

type traceEntry struct {
	at    time.Duration
	stage string
	msg   string
}

// Builder is owned by one conversion.
type Builder struct {
	id        string
	threshold int
	mode      Mode
	start     time.Time
	agg       Aggregate
	detail    []CompressionStat
	trace     []traceEntry
	// progress indexes the entry Progress rewrites; -1 when none is open.
	progress  int
}

// NewBuilder starts the clock for a conversion. A negative threshold selects
// DefaultDetailThreshold; zero never keeps per-page detail.
func NewBuilder(id string, threshold int) *Builder {
	if threshold < 0 {
		threshold = DefaultDetailThreshold
	}
	b := &Builder{id: id, threshold: threshold, start: time.Now(), progress: -1}
	if threshold == 0 {
		b.mode = SummaryOnly
	}
	return b
}

func (b *Builder) Mode() Mode { return b.mode }

// Fold adds one page to the aggregate. Once more pages than the threshold
// have been folded the builder drops its per-page list for good.
func (b *Builder) Fold(s CompressionStat) {
	b.agg.Pages++
	b.agg.Uncompressed += s.Uncompressed
	b.agg.Compressed += s.Compressed

	if b.mode != Detailed {
		return
	}
	if b.agg.Pages > b.threshold {
		b.mode = SummaryOnly
		b.detail = nil
		return
	}
	b.detail = append(b.detail, s)
}

// Trace records a pipeline step. Only failure reports print the trace.
func (b *Builder) Trace(stage, format string, args ...any) {
	b.trace = append(b.trace, traceEntry{
		at:    time.Since(b.start),
		stage: stage,
		msg:   fmt.Sprintf(format, args...),
	})
	b.progress = -1
}

// Progress records a step that supersedes the previous Progress entry of the
// same stage, so repeated per-page steps occupy one trace line. A Trace call
// in between starts a new line.
func (b *Builder) Progress(stage, format string, args ...any) {
	e := traceEntry{
		at:    time.Since(b.start),
		stage: stage,
		msg:   fmt.Sprintf(format, args...),
	}
	if b.progress >= 0 && b.trace[b.progress].stage == stage {
		b.trace[b.progress] = e
		return
	}
	b.trace = append(b.trace, e)
	b.progress = len(b.trace) - 1
}

func (b *Builder) Aggregate() Aggregate {
	a := b.agg
	a.Elapsed = time.Since(b.start)
	return a
}

// Summary is what the caller knows about a finished conversion.
type Summary struct {
	Format         string
	Compressed     bool
	Quality        int
	SourcePages    int
	PagesConverted int
	Decoder        string
	InputBytes     int
	OutputBytes    int
}

// Success renders the fixed-shape summary, plus one line per page while the
// builder is still detailed.
func (b *Builder) Success(s Summary) string {
	a := b.Aggregate()
	var sb strings.Builder

	fmt.Fprintf(&sb, "conversion %s succeeded\n", b.id)
	fmt.Fprintf(&sb, "format: %s\n", formatLine(s))
	fmt.Fprintf(&sb, "pages: %d of %d converted\n", s.PagesConverted, s.SourcePages)
	fmt.Fprintf(&sb, "decoder: %s\n", s.Decoder)
	fmt.Fprintf(&sb, "input: %s\n", HumanBytes(int64(s.InputBytes)))
	fmt.Fprintf(&sb, "output: %s\n", HumanBytes(int64(s.OutputBytes)))
	fmt.Fprintf(&sb, "uncompressed pages: %s\n", HumanBytes(a.Uncompressed))
	fmt.Fprintf(&sb, "embedded pages: %s\n", HumanBytes(a.Compressed))
	fmt.Fprintf(&sb, "reduction: %.1f%%\n", a.Reduction())
	fmt.Fprintf(&sb, "elapsed: %s\n", a.Elapsed.Round(time.Millisecond))

	if b.mode == Detailed {
		for _, d := range b.detail {
			fmt.Fprintf(&sb, "  page %d: %s -> %s\n", d.Page, HumanBytes(d.Uncompressed), HumanBytes(d.Compressed))
		}
	}
	return sb.String()
}

// Failure renders everything known at the point of failure.
func (b *Builder) Failure(stage string, err error) string {
	a := b.Aggregate()
	var sb strings.Builder

	fmt.Fprintf(&sb, "conversion %s failed\n", b.id)
	fmt.Fprintf(&sb, "stage: %s\n", stage)
	fmt.Fprintf(&sb, "error: %v\n", err)
	fmt.Fprintf(&sb, "elapsed: %s\n", a.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(&sb, "pages folded: %d (%s -> %s)\n", a.Pages, HumanBytes(a.Uncompressed), HumanBytes(a.Compressed))
	sb.WriteString("trace:\n")
	for _, e := range b.trace {
		fmt.Fprintf(&sb, "  +%s %s: %s\n", e.at.Round(time.Microsecond), e.stage, e.msg)
	}
	return sb.String()
}

func formatLine(s Summary) string {
	switch {
	case s.Format == "PDF" && s.Compressed:
		return fmt.Sprintf("PDF, pages recompressed at quality %d", s.Quality)
	case s.Format == "PDF":
		return "PDF, pages embedded losslessly"
	default:
		return fmt.Sprintf("%s at quality %d", s.Format, s.Quality)
	}
}

func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

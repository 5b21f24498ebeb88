package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives per-document outcomes while embeddings are backfilled.
type Reporter interface {
	Begin(total int)
	Embedded(title string)
	Skipped(title string, err error)
	Done()
}

// NewReporter picks a bar for interactive use and plain lines when CI is set.
func NewReporter(label string) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &LineReporter{label: label, out: os.Stderr}
	}
	return &BarReporter{label: label, out: os.Stderr}
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Begin(int)             {}
func (Nop) Embedded(string)       {}
func (Nop) Skipped(string, error) {}
func (Nop) Done()                 {}

// BarReporter draws a progress bar and lists skipped documents once the
// bar is cleared.
type BarReporter struct {
	label   string
	out     io.Writer
	bar     *progressbar.ProgressBar
	skipped []string
}

func (r *BarReporter) Begin(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *BarReporter) Embedded(title string) {
	r.step(title)
}

func (r *BarReporter) Skipped(title string, err error) {
	r.skipped = append(r.skipped, fmt.Sprintf("%s: %v", title, err))
	r.step(title)
}

func (r *BarReporter) step(title string) {
	if r.bar == nil {
		return
	}
	r.bar.Describe(fmt.Sprintf("%s (%s)", r.label, title))
	_ = r.bar.Add(1)
}

func (r *BarReporter) Done() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
	for _, s := range r.skipped {
		fmt.Fprintf(r.out, "skipped %s\n", s)
	}
}

// LineReporter writes one line per document, for logs without a terminal.
type LineReporter struct {
	label   string
	out     io.Writer
	total   int
	seen    int
	skipped int
}

func (r *LineReporter) Begin(total int) {
	r.total = total
	fmt.Fprintf(r.out, "%s: %d document(s) without an embedding\n", r.label, total)
}

func (r *LineReporter) Embedded(title string) {
	r.seen++
	fmt.Fprintf(r.out, "[%d/%d] embedded %s\n", r.seen, r.total, title)
}

func (r *LineReporter) Skipped(title string, err error) {
	r.seen++
	r.skipped++
	fmt.Fprintf(r.out, "[%d/%d] skipped %s: %v\n", r.seen, r.total, title, err)
}

func (r *LineReporter) Done() {
	fmt.Fprintf(r.out, "%s: %d embedded, %d skipped\n", r.label, r.seen-r.skipped, r.skipped)
}

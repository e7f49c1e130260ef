package hub

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress observes per-file download progress.
type Progress interface {
	Start(total int)
	Done(name string)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)   {}
func (nopProgress) Done(string) {}
func (nopProgress) Finish()     {}

// barProgress renders a file-count bar on w.
type barProgress struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarProgress returns a Progress that draws a terminal progress bar.
func NewBarProgress(w io.Writer) Progress { return &barProgress{w: w} }

func (b *barProgress) Start(total int) {
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription("fetching"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (b *barProgress) Done(name string) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(name)
	_ = b.bar.Add(1)
}

func (b *barProgress) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// embedProgress draws a bar on stderr while chunks are embedded. The bar is
// created on the first report, once the total is known.
type embedProgress struct {
	enabled bool
	bar     *progressbar.ProgressBar
}

func newEmbedProgress() *embedProgress {
	return &embedProgress{enabled: term.IsTerminal(int(os.Stderr.Fd()))}
}

func (p *embedProgress) Report(done, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("embedding"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(done)
	if done >= total {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

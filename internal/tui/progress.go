// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bodaay/KaggleDatasetFetcher/pkg/kagglefetcher"
)

const barTemplate = `{{string . "prefix"}}{{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

// LiveRenderer draws a byte progress bar for the archive download and
// prints one status line per fetch step.
//
// On a non-interactive stdout (pipes, CI logs) the bar is skipped and only
// the status lines are written.
type LiveRenderer struct {
	handle string
	out    io.Writer

	mu       sync.Mutex
	start    time.Time
	bar      *pb.ProgressBar
	supports bool
	stopped  bool
	received int64

	ok   func(a ...interface{}) string
	warn func(a ...interface{}) string
	bad  func(a ...interface{}) string
	dim  func(a ...interface{}) string
}

// NewLiveRenderer creates a renderer for one dataset handle writing to stdout.
func NewLiveRenderer(handle string) *LiveRenderer {
	return newRenderer(handle, os.Stdout, isInteractive() && ansiOkay())
}

func newRenderer(handle string, out io.Writer, supports bool) *LiveRenderer {
	lr := &LiveRenderer{
		handle:   handle,
		out:      out,
		start:    time.Now(),
		supports: supports,
		ok:       color.New(color.FgGreen).SprintFunc(),
		warn:     color.New(color.FgYellow).SprintFunc(),
		bad:      color.New(color.FgRed).SprintFunc(),
		dim:      color.New(color.Faint).SprintFunc(),
	}
	return lr
}

// Close finishes any running bar and prints the elapsed time.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.stopped {
		return
	}
	lr.stopped = true
	lr.finishBar()
	fmt.Fprintln(lr.out, lr.dim(fmt.Sprintf("elapsed %s", fmtDuration(time.Since(lr.start)))))
}

// Handler returns a ProgressFunc that feeds events to the renderer.
func (lr *LiveRenderer) Handler() kagglefetcher.ProgressFunc {
	return lr.apply
}

func (lr *LiveRenderer) apply(ev kagglefetcher.ProgressEvent) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.stopped {
		return
	}

	switch ev.Event {
	case "resolve":
		lr.linef("Resolving latest version of %s ...", lr.handle)
	case "cache_hit":
		lr.linef("%s using cached copy at %s", lr.ok("cached"), ev.Path)
	case "download_start":
		lr.received = 0
		lr.startBar(ev.Path, ev.Total)
	case "download_progress":
		lr.received = ev.Downloaded
		if lr.bar != nil {
			if ev.Total > 0 && lr.bar.Total() != ev.Total {
				lr.bar.SetTotal(ev.Total)
			}
			lr.bar.SetCurrent(ev.Downloaded)
		}
	case "retry":
		lr.finishBar()
		lr.linef("%s attempt %d: %s", lr.warn("retry"), ev.Attempt, ev.Message)
	case "extract":
		lr.finishBar()
		lr.linef("Extracting %s into %s", humanBytes(lr.received), ev.Path)
	case "download_done":
		lr.finishBar()
		lr.linef("%s %s", lr.ok("downloaded"), ev.Path)
	case "move":
		lr.linef("Moving to %s", ev.Path)
	case "copy":
		lr.linef("Copying to %s", ev.Path)
	case "cleanup":
		lr.linef("Removing cached copy %s", ev.Path)
	case "error":
		lr.finishBar()
		lr.linef("%s %s", lr.bad("error:"), ev.Message)
	case "done":
		lr.finishBar()
		lr.linef("%s %s", lr.ok("✓"), ev.Message)
	}
}

func (lr *LiveRenderer) startBar(name string, total int64) {
	lr.finishBar()
	if !lr.supports {
		if total > 0 {
			lr.linef("Downloading %s (%s)", name, humanBytes(total))
		} else {
			lr.linef("Downloading %s", name)
		}
		return
	}
	if total < 0 {
		total = 0
	}
	bar := pb.New64(total)
	bar.SetTemplateString(barTemplate)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", ellipsizeMiddle(name, 32)+" ")
	bar.SetWriter(lr.out)
	bar.SetRefreshRate(150 * time.Millisecond)
	if w, _ := termSize(); w > 0 {
		bar.SetWidth(w)
	}
	lr.bar = bar.Start()
}

func (lr *LiveRenderer) finishBar() {
	if lr.bar == nil {
		return
	}
	lr.bar.Finish()
	lr.bar = nil
}

func (lr *LiveRenderer) linef(format string, a ...interface{}) {
	fmt.Fprintf(lr.out, format+"\n", a...)
}

func ellipsizeMiddle(s string, w int) string {
	r := []rune(s)
	if len(r) <= w || w < 5 {
		return s
	}
	half := (w - 1) / 2
	return string(r[:half]) + "…" + string(r[len(r)-(w-1-half):])
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 6 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return w, h
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func ansiOkay() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}

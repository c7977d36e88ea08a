package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressBar shows byte progress of a payload stream
type ProgressBar struct {
	out       io.Writer
	label     string
	total     int64
	current   int64
	startTime time.Time
	mu        sync.Mutex
	width     int
	lastPrint time.Time
}

// NewProgressBar creates a progress bar writing to stderr. A total of zero
// or less means the size is unknown.
func NewProgressBar(label string, total int64) *ProgressBar {
	return NewProgressBarTo(os.Stderr, label, total)
}

// NewProgressBarTo creates a progress bar writing to w
func NewProgressBarTo(w io.Writer, label string, total int64) *ProgressBar {
	return &ProgressBar{
		out:       w,
		label:     label,
		total:     total,
		startTime: time.Now(),
		width:     40,
	}
}

// Set sets the number of bytes processed so far
func (pb *ProgressBar) Set(current int64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
	pb.print(false)
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.total > 0 {
		pb.current = pb.total
	}
	pb.print(true)
	fmt.Fprintf(pb.out, "\n")
}

// print renders the progress bar
func (pb *ProgressBar) print(force bool) {
	if !force && time.Since(pb.lastPrint) < 100*time.Millisecond {
		return
	}
	pb.lastPrint = time.Now()

	elapsed := time.Since(pb.startTime)
	mbProcessed := float64(pb.current) / (1000 * 1000)
	mbPerSec := 0.0
	if elapsed.Seconds() > 0 {
		mbPerSec = mbProcessed / elapsed.Seconds()
	}

	if pb.total <= 0 {
		fmt.Fprintf(pb.out, "\r  %s | %.1f MB | %.1f MB/s ", pb.label, mbProcessed, mbPerSec)
		return
	}

	percent := float64(pb.current) / float64(pb.total) * 100
	filled := int(float64(pb.width) * float64(pb.current) / float64(pb.total))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)

	if force || pb.current >= pb.total {
		fmt.Fprintf(pb.out, "\r  %s [%s] %6.2f%% | %.1f MB/s | Done    ",
			pb.label, bar, percent, mbPerSec)
		return
	}

	var eta time.Duration
	if mbPerSec > 0 {
		remaining := float64(pb.total-pb.current) / (1000 * 1000)
		eta = time.Duration(remaining/mbPerSec) * time.Second
	}
	fmt.Fprintf(pb.out, "\r  %s [%s] %6.2f%% | %.1f MB/s | ETA: %s ",
		pb.label, bar, percent, mbPerSec, formatETA(eta))
}

func formatETA(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

package progress

import (
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"
)

const refreshInterval = 100 * time.Millisecond

// Counter is a single-line activity indicator for walks whose size is not
// known up front. It shows the number of files counted so far and the
// directory being listed.
type Counter struct {
	files      int64
	dirs       int64
	currentDir string
	writer     io.Writer
	mu         sync.Mutex
	enabled    bool
	lastUpdate time.Time
}

func New() *Counter {
	return NewWithWriter(os.Stdout, isTerminal())
}

func NewWithWriter(w io.Writer, enabled bool) *Counter {
	return &Counter{
		writer:  w,
		enabled: enabled,
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	// Check if stdout is a terminal (character device)
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func (c *Counter) SetDirectory(dir string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dirs++
	c.currentDir = dir
	c.maybeRender()
}

func (c *Counter) Increment() {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.files++
	c.maybeRender()
}

// maybeRender must be called with mu already locked
func (c *Counter) maybeRender() {
	now := time.Now()
	if now.Sub(c.lastUpdate) < refreshInterval {
		return
	}
	c.lastUpdate = now
	c.render()
}

// render must be called with mu already locked
func (c *Counter) render() {
	var dirDisplay string
	if c.currentDir != "" {
		dirDisplay = " | " + path.Base(c.currentDir)
	}

	// Clear the line and write progress
	fmt.Fprintf(c.writer, "\r\033[K%d files in %d directories%s", c.files, c.dirs, dirDisplay)
}

func (c *Counter) Finish() {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentDir = ""
	c.render()
	fmt.Fprintf(c.writer, "\n")
}

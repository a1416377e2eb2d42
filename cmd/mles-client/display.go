// cmd/mles-client/display.go
package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"mlesclient/internal/client"
)

// consoleDisplay renders chat lines as plain text, converting wire
// timestamps to local time: clock only for today's messages, date and clock
// otherwise.
type consoleDisplay struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

var _ client.Display = (*consoleDisplay)(nil)

func newConsoleDisplay(w io.Writer) *consoleDisplay {
	return &consoleDisplay{w: w, now: time.Now}
}

func (d *consoleDisplay) Joined(uid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "%s joined.\n", uid)
}

func (d *consoleDisplay) Message(ts, sender, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "%s %s: %s\n", d.localTime(ts), sender, text)
}

func (d *consoleDisplay) Self(ts, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "%s %s\n", d.localTime(ts), text)
}

// localTime reformats a wire timestamp for display. Unparseable input is
// shown as-is.
func (d *consoleDisplay) localTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	local := t.Local()
	now := d.now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("2006-01-02 15:04")
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"assistant-proxy-be/pkg/conversation"

	"github.com/fatih/color"
)

// printer writes each new conversation entry once, in order.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
	pending bool

	user      *color.Color
	assistant *color.Color
	document  *color.Color
	image     *color.Color
	dim       *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:       out,
		printed:   -1,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen),
		document:  color.New(color.FgYellow),
		image:     color.New(color.FgMagenta),
		dim:       color.New(color.Faint),
	}
}

// Observe is installed as the machine observer.
func (p *printer) Observe(snap conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range snap.Entries {
		if e.Pending {
			if !p.pending {
				p.dim.Fprintln(p.out, "assistant: "+conversation.PendingMarker)
				p.pending = true
			}
			continue
		}
		if e.ID <= p.printed {
			continue
		}
		p.printEntry(e)
		p.printed = e.ID
	}
	if !snap.State.InFlight() {
		p.pending = false
	}
}

func (p *printer) printEntry(e conversation.Entry) {
	if e.Origin == conversation.OriginUser {
		// the terminal already echoed what was typed
		return
	}

	if e.Text != "" {
		p.assistant.Fprintln(p.out, "assistant: "+e.Text)
	}
	if e.DocumentID != "" {
		p.document.Fprintln(p.out, fmt.Sprintf("  [document %s]", e.DocumentID))
	}
	if e.ImageRef != "" {
		p.image.Fprintln(p.out, "  [image] "+e.ImageRef)
	}
}

// printServices shows the tags that will ride along with the next message.
func (p *printer) printServices(services []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(services) == 0 {
		p.dim.Fprintln(p.out, "no services selected")
		return
	}
	p.dim.Fprintln(p.out, "selected: "+strings.Join(services, ", "))
}

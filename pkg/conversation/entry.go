package conversation

import (
	"assistant-proxy-be/pkg/docref"
	"assistant-proxy-be/pkg/upstream"
)

type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// PendingMarker is the text of the placeholder shown while a turn is in flight.
const PendingMarker = "…"

// ApologyText replaces the assistant reply when a turn fails for any reason.
const ApologyText = "Sorry, something went wrong. Please try again."

// Entry is one rendered unit of the conversation. At least one of Text,
// ImageRef or DocumentID is set.
type Entry struct {
	ID         int    `json:"id"`
	Origin     Origin `json:"origin"`
	Text       string `json:"text,omitempty"`
	ImageRef   string `json:"image_ref,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Pending    bool   `json:"pending,omitempty"`
}

type StepKind string

const (
	StepText   StepKind = "text"
	StepVisual StepKind = "visual"
)

// Step is one assistant output unit after normalization.
type Step struct {
	Kind     StepKind `json:"kind"`
	Message  string   `json:"message,omitempty"`
	ImageRef string   `json:"image_ref,omitempty"`
}

// StepsFromTraces keeps text, speak and visual traces in order and drops every
// other kind.
func StepsFromTraces(traces []upstream.Trace) []Step {
	steps := make([]Step, 0, len(traces))
	for _, tr := range traces {
		switch tr.Type {
		case upstream.TraceText, upstream.TraceSpeak:
			if msg, ok := tr.Message(); ok {
				steps = append(steps, Step{Kind: StepText, Message: msg})
			}
		case upstream.TraceVisual:
			if img, ok := tr.Image(); ok {
				steps = append(steps, Step{Kind: StepVisual, ImageRef: img})
			}
		}
	}
	return steps
}

// entryFromStep returns false for steps that would render nothing.
func entryFromStep(step Step) (Entry, bool) {
	switch step.Kind {
	case StepText:
		e := Entry{Origin: OriginAssistant, Text: step.Message}
		if clean, id, ok := docref.Split(step.Message); ok {
			e.Text = clean
			e.DocumentID = id
		}
		if e.Text == "" && e.DocumentID == "" {
			return Entry{}, false
		}
		return e, true
	case StepVisual:
		if step.ImageRef == "" {
			return Entry{}, false
		}
		return Entry{Origin: OriginAssistant, ImageRef: step.ImageRef}, true
	}
	return Entry{}, false
}

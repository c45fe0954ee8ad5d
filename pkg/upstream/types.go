package upstream

import "encoding/json"

// Action types understood by the dialog runtime
const (
	ActionLaunch = "launch"
	ActionText   = "text"
)

// Trace types the proxy and the widget care about. Everything else is passed
// through untouched and later dropped by the conversation layer.
const (
	TraceText   = "text"
	TraceSpeak  = "speak"
	TraceVisual = "visual"
)

// Trace is one step returned by the dialog runtime. Payload is kept raw so that
// steps the proxy does not rewrite reach the caller byte-for-byte.
type Trace struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TextPayload is the payload shape of text and speak traces.
type TextPayload struct {
	Message string `json:"message"`
}

// VisualPayload is the payload shape of visual traces.
type VisualPayload struct {
	Image string `json:"image"`
}

// Message decodes the message of a text/speak trace.
func (t Trace) Message() (string, bool) {
	if t.Type != TraceText && t.Type != TraceSpeak {
		return "", false
	}
	var p TextPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return "", false
	}
	return p.Message, true
}

// Image decodes the image reference of a visual trace.
func (t Trace) Image() (string, bool) {
	if t.Type != TraceVisual {
		return "", false
	}
	var p VisualPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return "", false
	}
	return p.Image, p.Image != ""
}

// WithMessage returns a copy of a text/speak trace with its message replaced.
// Other payload fields are kept as they were.
func (t Trace) WithMessage(message string) (Trace, error) {
	fields := map[string]json.RawMessage{}
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &fields); err != nil {
			return t, err
		}
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return t, err
	}
	fields["message"] = raw

	payload, err := json.Marshal(fields)
	if err != nil {
		return t, err
	}
	return Trace{Type: t.Type, Payload: payload}, nil
}

// --- Wire structs ---

type interactAction struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

type interactConfig struct {
	TTS          bool     `json:"tts"`
	StripSSML    bool     `json:"stripSSML"`
	StopAll      bool     `json:"stopAll"`
	ExcludeTypes []string `json:"excludeTypes"`
}

type interactRequest struct {
	Action interactAction `json:"action"`
	Config interactConfig `json:"config"`
}

type transcriptRequest struct {
	ProjectID string `json:"projectID"`
	VersionID string `json:"versionID"`
	SessionID string `json:"sessionID"`
}

// control/debug step kinds the runtime should not emit at all
var excludedTraceTypes = []string{"block", "debug", "flow"}

func defaultInteractConfig() interactConfig {
	return interactConfig{
		TTS:          false,
		StripSSML:    true,
		StopAll:      true,
		ExcludeTypes: excludedTraceTypes,
	}
}

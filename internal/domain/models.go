package domain

// Domain contains core models and interfaces.

// OutcomeOK is the Kind of a successful call.
const OutcomeOK = "ok"

// Outcome is the classified result of one probe call.
type Outcome struct {
	EndpointID   string `json:"endpoint_id"`
	EndpointName string `json:"endpoint_name"`
	OK           bool   `json:"ok"`
	Kind         string `json:"kind"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	HTTPReason   string `json:"http_reason,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	NetworkError string `json:"network_error,omitempty"`
	Errno        int    `json:"errno,omitempty"`
	JSON         any    `json:"json,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Fingerprint  string `json:"fingerprint"`
	DurationMs   int64  `json:"duration_ms"`
}

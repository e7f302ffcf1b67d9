package domain

import "net/http"

// Alert levels understood by the front-end.
const (
	AlertSuccess = "success"
	AlertError   = "error"
)

// Alert is a user-facing notice.
type Alert struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response collects everything a request produces besides its data: alerts,
// an optional message and the status code. One is created per request and
// passed explicitly to every service call that may add to it.
type Response struct {
	Message string  `json:"message"`
	Alerts  []Alert `json:"alerts"`
	Data    any     `json:"data"`

	status int
}

// NewResponse returns an empty response with status 200.
func NewResponse() *Response {
	return &Response{Alerts: []Alert{}}
}

// AddAlert appends a notice.
func (r *Response) AddAlert(level, text string) {
	r.Alerts = append(r.Alerts, Alert{Type: level, Text: text})
}

// SetStatus overrides the HTTP status code.
func (r *Response) SetStatus(code int) {
	r.status = code
}

// Status returns the HTTP status code, 200 when none was set.
func (r *Response) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// HasErrors reports whether an error alert was added.
func (r *Response) HasErrors() bool {
	for _, a := range r.Alerts {
		if a.Type == AlertError {
			return true
		}
	}
	return false
}

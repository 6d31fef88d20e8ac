package daemon

import (
	"encoding/json"
	"errors"

	"evalgo.org/nodelink/models"
)

// Outcome is the normalized result of one daemon call. Every call yields an
// Outcome, including transport failures (Status 0).
type Outcome struct {
	// Status is the HTTP status code, or 0 when no response was received
	Status int

	// Body is the decoded JSON body, nil for raw calls and undecodable bodies
	Body any

	// Raw is the response body as received
	Raw []byte

	// ErrorMessage is set iff the call was not successful
	ErrorMessage string

	// Kind classifies the outcome; KindNone on success
	Kind Kind
}

// Success reports whether the daemon answered with a 2xx status.
func (o *Outcome) Success() bool {
	return o.Kind == KindNone && o.Status >= 200 && o.Status < 300
}

// Err returns nil on success and an *Error otherwise.
func (o *Outcome) Err() error {
	if o.Success() {
		return nil
	}
	return &Error{Kind: o.Kind, Status: o.Status, Message: o.ErrorMessage}
}

// Decode unmarshals the raw body into v.
func (o *Outcome) Decode(v any) error {
	if len(o.Raw) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(o.Raw, v)
}

// Map returns Body as a JSON object, or nil.
func (o *Outcome) Map() map[string]any {
	m, _ := o.Body.(map[string]any)
	return m
}

// Result converts the outcome into the success/data/error triple returned
// by domain callers. For raw calls Data is the body as a string.
func (o *Outcome) Result() models.CallResult {
	r := models.CallResult{
		Success: o.Success(),
		Status:  o.Status,
		Error:   o.ErrorMessage,
		Kind:    string(o.Kind),
	}
	if r.Success {
		if o.Body != nil {
			r.Data = o.Body
		} else if len(o.Raw) > 0 {
			r.Data = string(o.Raw)
		}
	}
	return r
}

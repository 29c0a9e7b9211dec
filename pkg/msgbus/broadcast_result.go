package msgbus

import (
	"net/http"
	"time"
)

// BroadcastStatus classifies the outcome of a broadcast.
type BroadcastStatus int

const (
	// StatusSuccess means every targeted transmitter succeeded.
	StatusSuccess BroadcastStatus = iota

	// StatusPartial means some, but not all, transmitters failed.
	StatusPartial

	// StatusFailed means every targeted transmitter failed.
	StatusFailed
)

// String returns the status name.
func (s BroadcastStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusCode maps the status to the HTTP code an API layer would return:
// 200, 207 Multi-Status, or 500.
func (s BroadcastStatus) StatusCode() int {
	switch s {
	case StatusSuccess:
		return http.StatusOK
	case StatusPartial:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// TransmissionResult is the outcome of one transmitter invocation.
type TransmissionResult struct {
	TransmitterID string
	Err           error
	Duration      time.Duration
}

// Successful reports whether the transmission completed without error.
func (r TransmissionResult) Successful() bool {
	return r.Err == nil
}

// BroadcastResult is returned once per broadcast.
//
// TransmissionResults follows transmitter registration order. It is nil
// when Status is StatusFailed; the causes are on the returned AggregateError.
type BroadcastResult struct {
	Status              BroadcastStatus
	TransmissionResults []TransmissionResult
}

// Failed returns the results that carry an error.
func (r *BroadcastResult) Failed() []TransmissionResult {
	return r.filter(false)
}

// Succeeded returns the results without an error.
func (r *BroadcastResult) Succeeded() []TransmissionResult {
	return r.filter(true)
}

func (r *BroadcastResult) filter(successful bool) []TransmissionResult {
	if r == nil {
		return nil
	}
	var out []TransmissionResult
	for _, tr := range r.TransmissionResults {
		if tr.Successful() == successful {
			out = append(out, tr)
		}
	}
	return out
}

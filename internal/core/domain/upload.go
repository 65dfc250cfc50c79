package domain

// UploadPayload is one independent object pushed to a blob store.
type UploadPayload struct {
	Key         string            `json:"key"`
	Body        []byte            `json:"-"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UploadResult is the outcome of one payload.
type UploadResult struct {
	Key         string `json:"key"`
	Attempts    int    `json:"attempts"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Succeeded reports whether the payload was stored.
func (r UploadResult) Succeeded() bool {
	return r.Error == ""
}

// UploadReport collects successes and failures of a bulk upload.
type UploadReport struct {
	Succeeded []UploadResult `json:"succeeded"`
	Failed    []UploadResult `json:"failed"`
	Batches   int            `json:"batches"`
}

// Total returns the number of payloads handled.
func (r *UploadReport) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

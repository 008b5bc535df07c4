// Package v1 defines the JSON request and reply messages of the TryOn HTTP API.
package v1

// QueuedUpload is one pending upload as exposed by the API.
type QueuedUpload struct {
	ID       string `json:"id"`
	ImageURI string `json:"imageUri"`
	Category string `json:"category"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	QueuedAt string `json:"queuedAt"`
}

// EnqueueUploadRequest queues one image. ID and QueuedAt are minted when empty.
type EnqueueUploadRequest struct {
	ID       string `json:"id,omitempty"`
	ImageURI string `json:"imageUri"`
	Category string `json:"category"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	QueuedAt string `json:"queuedAt,omitempty"`
}

// EnqueueUploadReply returns the stored ID and the queue length after the append.
type EnqueueUploadReply struct {
	ID     string `json:"id"`
	Length int    `json:"length"`
}

// ListUploadsRequest asks for every pending upload.
type ListUploadsRequest struct{}

// ListUploadsReply lists pending uploads in queue order.
type ListUploadsReply struct {
	Length int             `json:"length"`
	Items  []*QueuedUpload `json:"items"`
}

// ProcessUploadsRequest triggers one queue pass.
type ProcessUploadsRequest struct{}

// ProcessUploadsReply reports the uploads delivered by the pass and those still queued.
type ProcessUploadsReply struct {
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

// ClearUploadsRequest drops every pending upload.
type ClearUploadsRequest struct{}

// ClearUploadsReply is empty on success.
type ClearUploadsReply struct{}

// GetRateLimitRequest asks for the admission settings and the caller's usage.
type GetRateLimitRequest struct{}

// GetRateLimitReply describes the active rate limit backend and window.
type GetRateLimitReply struct {
	Backend     string `json:"backend"`
	MaxRequests int    `json:"maxRequests"`
	WindowMs    int64  `json:"windowMs"`
	// TrackedKeys counts the keys held by the in-process limiter.
	TrackedKeys int `json:"trackedKeys"`
	// Used counts the caller's requests inside the current window, this one included.
	Used int `json:"used"`
}

// ResetRateLimitRequest clears every window of the in-process limiter.
type ResetRateLimitRequest struct{}

// ResetRateLimitReply is empty on success.
type ResetRateLimitReply struct{}

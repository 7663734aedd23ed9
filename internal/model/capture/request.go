package capture

// Reason tells the capturer what a burst is for.
type Reason string

const (
	// ReasonTyping bursts are uploaded by the capturer itself and only refresh the
	// last seen label.
	ReasonTyping Reason = "typing"
	// ReasonSubmit bursts are handed back to the send workflow in the acknowledgement.
	ReasonSubmit Reason = "submit"
)

// Request is the "capture requested" command sent to the capturer.
type Request struct {
	ID     string
	Reason Reason
	Reply  chan Result
}

// Result acknowledges a Request once its burst has finished.
type Result struct {
	RequestID string
	Reason    Reason
	Frames    []Frame
	// Emotion is only set for typing bursts.
	Emotion string
	Err     error
}

package server

// EventSink receives session milestones. Implementations render them
// however they like (progress bar, log lines); the session never blocks
// on them, so implementations must return promptly.
type EventSink interface {
	// HandshakeAccepted fires once, when the read request for the
	// configured image is accepted and the client endpoint is pinned.
	HandshakeAccepted(filename string)
	// BlockSent fires on every (re)transmission of a data block.
	BlockSent(n, total int)
	Completed()
	Failed(err error)
	Cancelled()
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) HandshakeAccepted(string) {}

func (NopSink) BlockSent(int, int) {}

func (NopSink) Completed() {}

func (NopSink) Failed(error) {}

func (NopSink) Cancelled() {}

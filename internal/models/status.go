package models

// NegotiationStatus is the lifecycle state of a negotiation.
type NegotiationStatus string

const (
	NegotiationOpen      NegotiationStatus = "OPEN"
	NegotiationConsensus NegotiationStatus = "CONSENSUS"
	NegotiationAborted   NegotiationStatus = "ABORTED"
)

// Valid reports whether s is a known negotiation status.
func (s NegotiationStatus) Valid() bool {
	switch s {
	case NegotiationOpen, NegotiationConsensus, NegotiationAborted:
		return true
	}
	return false
}

// PeerStatus is the ratified state of a peer.
type PeerStatus string

const (
	PeerPending PeerStatus = "PENDING"
	PeerReady   PeerStatus = "READY"
	PeerDeleted PeerStatus = "DELETED"
)

// Valid reports whether s is a known peer status.
func (s PeerStatus) Valid() bool {
	switch s {
	case PeerPending, PeerReady, PeerDeleted:
		return true
	}
	return false
}

// EndpointStatus is the ratified state of an endpoint.
type EndpointStatus string

const (
	EndpointPending   EndpointStatus = "PENDING"
	EndpointOpen      EndpointStatus = "OPEN"
	EndpointFull      EndpointStatus = "FULL"
	EndpointClosed    EndpointStatus = "CLOSED"
	EndpointProcessed EndpointStatus = "PROCESSED"
)

// Valid reports whether s is a known endpoint status.
func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointPending, EndpointOpen, EndpointFull, EndpointClosed, EndpointProcessed:
		return true
	}
	return false
}

// AcceptsTraffic reports whether a box of an endpoint in status s may take
// new messages. Inboxes only fill while the endpoint is open; outboxes are
// written while open or after the inbox has been closed for processing.
func (s EndpointStatus) AcceptsTraffic(box Box) bool {
	switch box {
	case BoxInbox:
		return s == EndpointOpen
	case BoxOutbox:
		return s == EndpointOpen || s == EndpointClosed
	}
	return false
}

// Box is one side of an endpoint's message flow.
type Box string

const (
	BoxInbox  Box = "INBOX"
	BoxOutbox Box = "OUTBOX"
)

// Valid reports whether b is a known box.
func (b Box) Valid() bool {
	return b == BoxInbox || b == BoxOutbox
}

// Boxes lists every box in a stable order.
func Boxes() []Box {
	return []Box{BoxInbox, BoxOutbox}
}

var peerTransitions = map[PeerStatus][]PeerStatus{
	PeerPending: {PeerReady, PeerDeleted},
	PeerReady:   {PeerDeleted},
	PeerDeleted: nil,
}

// CanTransition reports whether a ratified change from s to next is allowed.
// DELETED is terminal.
func (s PeerStatus) CanTransition(next PeerStatus) bool {
	for _, t := range peerTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

var endpointTransitions = map[EndpointStatus][]EndpointStatus{
	EndpointPending:   {EndpointOpen, EndpointClosed},
	EndpointOpen:      {EndpointFull, EndpointClosed},
	EndpointFull:      {EndpointOpen, EndpointClosed},
	EndpointClosed:    {EndpointProcessed},
	EndpointProcessed: nil,
}

// CanTransition reports whether a ratified change from s to next is allowed.
// PROCESSED is terminal.
func (s EndpointStatus) CanTransition(next EndpointStatus) bool {
	for _, t := range endpointTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

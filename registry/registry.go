package registry

// PeerConnection describes one live duplex connection a node holds open to
// a remote peer: the node's own dialable address (so a third party can be
// routed to the node already holding the socket, instead of dialing the
// peer directly) and how many call sessions are currently multiplexed on
// it.
type PeerConnection struct {
	NodeAddr string
	Sessions int
}

// Registry is the connection directory: for a given peer identity (e.g. its
// remote address or another stable identifier), it tracks which nodes
// currently hold a live connection to that peer. A server announces a
// connection when it accepts one and withdraws it when the connection
// closes; a node that needs to reach a peer already connected elsewhere
// looks it up here instead of dialing the peer directly.
type Registry interface {
	Announce(peerID string, conn PeerConnection, ttl int64) error
	Withdraw(peerID string, nodeAddr string) error
	Lookup(peerID string) ([]PeerConnection, error)
	Watch(peerID string) <-chan []PeerConnection
}

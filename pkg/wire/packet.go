package wire

// Packet is the unit of protocol exchange. It is a value type: it owns no
// external resources and has no mutable lifecycle once constructed.
//
// Only the fields relevant to Kind are meaningful; the zero value of the
// others is ignored by Encode and by role processors.
type Packet struct {
	Kind Kind

	// SenderAddr is set from the inbound connection's peer address on decode
	// (with the listen port substituted in for kinds that carry one). It is
	// never transmitted.
	SenderAddr Address

	// DestAddr is used only locally to route an outbound packet through the
	// dispatcher. It is never transmitted.
	DestAddr Address

	Role       Role     // Notify
	ListenPort uint16   // AskIp, Notify, RequestFromClient
	NodeID     string   // HeartbeatAck
	Action     Action   // RequestFromClient
	Filename   string   // RequestFromClient, ClientUpload
	Payload    []byte   // ClientUpload
	MasterAddr *Address // AskIpAck (nil means no master known)
	DataAddr   Address  // ResponseNodeIp
}

// To returns a copy of p with DestAddr set, for enqueuing onto an outbound
// channel.
func (p Packet) To(addr Address) Packet {
	p.DestAddr = addr
	return p
}

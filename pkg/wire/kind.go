package wire

// Kind identifies the purpose of a Packet and how its payload is laid out on
// the wire. The byte values below are part of the protocol and must not be
// renumbered.
type Kind uint8

const (
	Default Kind = iota
	Heartbeat
	HeartbeatAck
	RequestSendReplica
	SendReplica
	SendReplicaAck
	AskIp
	AskIpAck
	RequestFromClient
	ResponseNodeIp
	ClientUpload
	DataNodeSendData
	ClientRequestAck
	StateSync
	StateSyncAck
	Notify
)

func (k Kind) String() string {
	switch k {
	case Default:
		return "Default"
	case Heartbeat:
		return "Heartbeat"
	case HeartbeatAck:
		return "HeartbeatAck"
	case RequestSendReplica:
		return "RequestSendReplica"
	case SendReplica:
		return "SendReplica"
	case SendReplicaAck:
		return "SendReplicaAck"
	case AskIp:
		return "AskIp"
	case AskIpAck:
		return "AskIpAck"
	case RequestFromClient:
		return "RequestFromClient"
	case ResponseNodeIp:
		return "ResponseNodeIp"
	case ClientUpload:
		return "ClientUpload"
	case DataNodeSendData:
		return "DataNodeSendData"
	case ClientRequestAck:
		return "ClientRequestAck"
	case StateSync:
		return "StateSync"
	case StateSyncAck:
		return "StateSyncAck"
	case Notify:
		return "Notify"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is one of the enumerated kinds, Default (0)
// through Notify (15).
func (k Kind) Valid() bool {
	return k <= Notify
}

// Role tags a node's function on the wire. It is encoded as a single byte in
// Notify and similar payloads.
type Role uint8

const (
	RoleDefault Role = iota
	RoleMaster
	RoleData
	RoleDNS
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleData:
		return "data"
	case RoleDNS:
		return "dns"
	case RoleClient:
		return "client"
	default:
		return "default"
	}
}

// Action selects whether a RequestFromClient packet is a read or write
// request.
type Action uint8

const (
	ActionRead Action = iota
	ActionWrite
)

func (a Action) String() string {
	if a == ActionWrite {
		return "write"
	}
	return "read"
}

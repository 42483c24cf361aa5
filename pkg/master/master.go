// Package master implements the Master role: it owns the node catalog and
// file catalog, routes client write requests to a chosen Data node, and
// broadcasts heartbeats to known Data nodes.
package master

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/db/clusterdb"
	"github.com/nodecluster/blobstore/pkg/cluster"
	"github.com/nodecluster/blobstore/pkg/wire"
)

// Handler is the Master processor state machine.
type Handler struct {
	log zerolog.Logger
	db  *clusterdb.DB
	fs  *cluster.Filesystem
	m   *cluster.Metrics

	self              wire.Address
	dnsAddr           wire.Address
	heartbeatInterval time.Duration
	lastHeartbeat     time.Time

	notifiedDNS bool
}

// New builds a Master Handler. self is this Master's own listen address,
// advertised to DNS on startup.
func New(log zerolog.Logger, db *clusterdb.DB, fs *cluster.Filesystem, m *cluster.Metrics, self, dnsAddr wire.Address, heartbeatInterval time.Duration) *Handler {
	return &Handler{
		log:               log.With().Str("role", "master").Logger(),
		db:                db,
		fs:                fs,
		m:                 m,
		self:              self,
		dnsAddr:           dnsAddr,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *Handler) Handle(p wire.Packet, out chan<- wire.Packet) {
	switch p.Kind {
	case wire.Notify:
		if err := h.db.UpsertNode(p.SenderAddr, wire.RoleData, time.Now()); err != nil {
			h.log.Error().Err(err).Str("sender", p.SenderAddr.String()).Msg("upsert node catalog failed")
			return
		}
		h.log.Info().Str("node", p.SenderAddr.String()).Msg("data node registered")
	case wire.HeartbeatAck:
		addr, err := wire.ParseNodeID(p.NodeID)
		if err != nil {
			h.log.Error().Err(err).Str("node_id", p.NodeID).Msg("malformed heartbeat ack node id")
			return
		}
		if err := h.db.UpsertNode(addr, wire.RoleData, time.Now()); err != nil {
			h.log.Error().Err(err).Str("node", addr.String()).Msg("upsert node catalog failed")
			return
		}
	case wire.RequestFromClient:
		h.handleRequestFromClient(p, out)
	case wire.ClientUpload:
		if err := h.fs.SaveFile(p.Filename, p.Payload); err != nil {
			h.log.Error().Err(err).Str("filename", p.Filename).Msg("save uploaded file failed")
			return
		}
		if err := h.db.UpsertFile(p.Filename, true, h.self.String(), "", time.Now()); err != nil {
			h.log.Error().Err(err).Str("filename", p.Filename).Msg("upsert file catalog failed")
		}
	default:
		h.log.Warn().Str("kind", p.Kind.String()).Str("sender", p.SenderAddr.String()).Msg("unexpected packet, discarding")
	}
}

func (h *Handler) handleRequestFromClient(p wire.Packet, out chan<- wire.Packet) {
	switch p.Action {
	case wire.ActionWrite:
		targets, err := h.db.SelectTargets(1)
		if err != nil {
			h.log.Error().Err(err).Msg("select replication targets failed")
			return
		}
		if len(targets) == 0 {
			h.log.Error().Str("filename", p.Filename).Msg("no data nodes available to route write")
			return
		}
		reply := wire.Packet{Kind: wire.ResponseNodeIp, DataAddr: targets[0]}
		out <- reply.To(p.SenderAddr)
	case wire.ActionRead:
		h.log.Warn().Str("filename", p.Filename).Msg("read routing not implemented, discarding")
	}
}

// Tick broadcasts a Heartbeat to every known Data node once the heartbeat
// interval has elapsed since the last broadcast. On first call it also
// enqueues the startup Notify advertising this Master to DNS.
func (h *Handler) Tick(out chan<- wire.Packet) {
	if !h.notifiedDNS {
		h.notifiedDNS = true
		notify := wire.Packet{Kind: wire.Notify, Role: wire.RoleMaster, ListenPort: h.self.Port}
		out <- notify.To(h.dnsAddr)
	}

	if time.Since(h.lastHeartbeat) < h.heartbeatInterval {
		return
	}
	h.lastHeartbeat = time.Now()

	nodes, err := h.db.NodesByRole(wire.RoleData)
	if err != nil {
		h.log.Error().Err(err).Msg("list data nodes for heartbeat failed")
		return
	}
	for _, n := range nodes {
		hb := wire.Packet{Kind: wire.Heartbeat}
		out <- hb.To(n.Addr)
	}
}

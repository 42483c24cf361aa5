// Package data implements the Data role: it stores file blobs on local
// disk, registers with Master after learning Master's address via DNS, and
// responds to heartbeats.
package data

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/db/clusterdb"
	"github.com/nodecluster/blobstore/pkg/cluster"
	"github.com/nodecluster/blobstore/pkg/wire"
)

// Handler is the Data processor state machine.
type Handler struct {
	log zerolog.Logger
	db  *clusterdb.DB
	fs  *cluster.Filesystem

	self    wire.Address
	dnsAddr wire.Address

	master    *wire.Address
	askedOnce bool
}

// New builds a Data Handler. self is this node's own listen address.
func New(log zerolog.Logger, db *clusterdb.DB, fs *cluster.Filesystem, self, dnsAddr wire.Address) *Handler {
	return &Handler{
		log:     log.With().Str("role", "data").Logger(),
		db:      db,
		fs:      fs,
		self:    self,
		dnsAddr: dnsAddr,
	}
}

func (h *Handler) Handle(p wire.Packet, out chan<- wire.Packet) {
	switch p.Kind {
	case wire.AskIpAck:
		if p.MasterAddr == nil {
			h.log.Error().Msg("dns has no master address yet")
			return
		}
		h.master = p.MasterAddr
		h.log.Info().Str("master", h.master.String()).Msg("learned master address")
		notify := wire.Packet{Kind: wire.Notify, Role: wire.RoleData, ListenPort: h.self.Port}
		out <- notify.To(*h.master)
	case wire.Heartbeat:
		if h.master == nil {
			h.log.Warn().Msg("heartbeat received before master known")
			return
		}
		ack := wire.Packet{Kind: wire.HeartbeatAck, NodeID: h.self.String()}
		out <- ack.To(*h.master)
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

// Tick sends the startup AskIp to DNS exactly once.
func (h *Handler) Tick(out chan<- wire.Packet) {
	if h.askedOnce {
		return
	}
	h.askedOnce = true
	ask := wire.Packet{Kind: wire.AskIp, ListenPort: h.self.Port}
	out <- ask.To(h.dnsAddr)
}

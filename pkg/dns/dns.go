// Package dns implements the DNS role: it holds the currently advertised
// Master address and answers address queries.
package dns

import (
	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/pkg/wire"
)

// Handler is the DNS processor state machine (pkg/cluster.Handler). Its only
// state is a single optional current-Master address.
type Handler struct {
	log zerolog.Logger

	master *wire.Address
}

// New builds a DNS Handler.
func New(log zerolog.Logger) *Handler {
	return &Handler{log: log.With().Str("role", "dns").Logger()}
}

func (h *Handler) Handle(p wire.Packet, out chan<- wire.Packet) {
	switch p.Kind {
	case wire.Notify:
		addr := p.SenderAddr
		h.master = &addr
		h.log.Info().Str("master", addr.String()).Msg("master address updated")
	case wire.AskIp:
		reply := wire.Packet{Kind: wire.AskIpAck, MasterAddr: h.master}
		out <- reply.To(p.SenderAddr)
	default:
		h.log.Warn().Str("kind", p.Kind.String()).Str("sender", p.SenderAddr.String()).Msg("unexpected packet, discarding")
	}
}

// Tick is a no-op: DNS has no time-driven behavior.
func (h *Handler) Tick(out chan<- wire.Packet) {}

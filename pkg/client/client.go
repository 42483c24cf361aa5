// Package client implements the Client role: a scripted read/write
// transaction driver rather than a reactive state machine.
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/pkg/cluster"
	"github.com/nodecluster/blobstore/pkg/wire"
)

// Config is the set of inputs the Client's scripted sequence needs beyond
// the shared cluster.Config (DNS address, timeouts).
type Config struct {
	Self    wire.Address
	DNSAddr wire.Address
	Action  wire.Action
	Name    string // remote filename
	Path    string // local file path, for --action write
}

// Run drives the five-step scripted sequence described for the Client role:
// bind a reply listener, read the source file, ask DNS for Master, ask
// Master to route the write, then upload the blob to the assigned Data
// node. Any missing expected reply is treated as fatal, matching the
// propagation policy for the Client.
func Run(log zerolog.Logger, cc *Config, recvTimeout time.Duration) error {
	log = log.With().Str("role", "client").Logger()

	ln, err := net.ListenTCP("tcp", cc.Self.TCPAddr())
	if err != nil {
		return fmt.Errorf("client: bind reply listener: %w", err)
	}
	defer ln.Close()

	if cc.Action != wire.ActionWrite {
		return fmt.Errorf("client: action %s not supported (read path is a reserved placeholder)", cc.Action)
	}

	blob, err := os.ReadFile(cc.Path)
	if err != nil {
		return fmt.Errorf("client: read source file %q: %w", cc.Path, err)
	}

	log.Info().Str("dns", cc.DNSAddr.String()).Msg("asking dns for master")
	ask := wire.Packet{Kind: wire.AskIp, ListenPort: cc.Self.Port}
	if err := cluster.SendPacket(cc.DNSAddr, ask); err != nil {
		return fmt.Errorf("client: send AskIp to dns: %w", err)
	}
	askAck, err := cluster.RecvOne(ln, recvTimeout)
	if err != nil {
		return fmt.Errorf("client: waiting for AskIpAck from dns: %w", err)
	}
	if askAck.Kind != wire.AskIpAck || askAck.MasterAddr == nil {
		return fmt.Errorf("client: dns has no master address available")
	}
	master := *askAck.MasterAddr
	log.Info().Str("master", master.String()).Msg("learned master address")

	req := wire.Packet{Kind: wire.RequestFromClient, Action: wire.ActionWrite, ListenPort: cc.Self.Port, Filename: cc.Name}
	if err := cluster.SendPacket(master, req); err != nil {
		return fmt.Errorf("client: send RequestFromClient to master: %w", err)
	}
	resp, err := cluster.RecvOne(ln, recvTimeout)
	if err != nil {
		return fmt.Errorf("client: waiting for ResponseNodeIp from master: %w", err)
	}
	if resp.Kind != wire.ResponseNodeIp {
		return fmt.Errorf("client: expected ResponseNodeIp, got %s", resp.Kind)
	}
	target := resp.DataAddr
	log.Info().Str("data_node", target.String()).Msg("routed to data node")

	upload := wire.Packet{Kind: wire.ClientUpload, Filename: cc.Name, Payload: blob}
	if err := cluster.SendPacket(target, upload); err != nil {
		return fmt.Errorf("client: send ClientUpload to data node: %w", err)
	}

	log.Info().Str("filename", cc.Name).Str("data_node", target.String()).Msg("upload complete")
	return nil
}

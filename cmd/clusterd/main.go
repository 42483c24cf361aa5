// Command clusterd runs a single node of the cluster: a DNS, Master, Data,
// or Client role instance, selected by --role.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-envparse"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nodecluster/blobstore/db/clusterdb"
	"github.com/nodecluster/blobstore/pkg/client"
	"github.com/nodecluster/blobstore/pkg/cluster"
	"github.com/nodecluster/blobstore/pkg/data"
	"github.com/nodecluster/blobstore/pkg/dns"
	"github.com/nodecluster/blobstore/pkg/master"
	"github.com/nodecluster/blobstore/pkg/wire"
)

var opt struct {
	Help    bool
	Role    string
	Port    uint16
	DirData string
	Action  string
	Name    string
	Path    string
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.StringVar(&opt.Role, "role", "", "Node role: master, data, dns, or client (required)")
	pflag.Uint16Var(&opt.Port, "port", 7888, "Listen port for this node's receiver")
	pflag.StringVar(&opt.DirData, "dir-data", "./data", "Data directory (master, data roles)")
	pflag.StringVar(&opt.Action, "action", "write", "Client action: read or write (client role)")
	pflag.StringVar(&opt.Name, "name", "", "Remote filename (client role)")
	pflag.StringVar(&opt.Path, "path", "", "Local file path (client role)")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		x, err := readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		e = x
	}

	var c cluster.Config
	if err := c.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}
	log := cluster.NewLogger(&c)

	dnsIP, err := c.DNSAddr()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid IP_DNS")
	}
	var dnsAddr wire.Address
	copy(dnsAddr.IP[:], dnsIP.To4())
	dnsAddr.Port = c.DNSPort

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch opt.Role {
	case "master":
		runMaster(ctx, log, &c, dnsAddr)
	case "data":
		runData(ctx, log, &c, dnsAddr)
	case "dns":
		runDNS(ctx, log, &c)
	case "client":
		runClient(log, &c, dnsAddr)
	default:
		fmt.Fprintf(os.Stderr, "error: --role must be one of master, data, dns, client\n")
		os.Exit(2)
	}
}

func runDNS(ctx context.Context, log zerolog.Logger, c *cluster.Config) {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: int(c.DNSPort)}
	h := dns.New(log)
	n := cluster.NewNode(c, log, cluster.NewMetrics(wire.RoleDNS), addr, h)
	runWithShutdown(ctx, n)
}

func runMaster(ctx context.Context, log zerolog.Logger, c *cluster.Config, dnsAddr wire.Address) {
	fs, err := cluster.OpenFilesystem(opt.DirData)
	if err != nil {
		log.Fatal().Err(err).Msg("open data directory failed")
	}
	db, err := clusterdb.OpenMemory()
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog database failed")
	}
	defer db.Close()

	self := selfAddress(opt.Port, c.MasterPort)
	m := cluster.NewMetrics(wire.RoleMaster)
	h := master.New(log, db, fs, m, self, dnsAddr, c.HeartbeatInterval.Duration())
	n := cluster.NewNode(c, log, m, self.TCPAddr(), h)
	runWithShutdown(ctx, n)
}

func runData(ctx context.Context, log zerolog.Logger, c *cluster.Config, dnsAddr wire.Address) {
	fs, err := cluster.OpenFilesystem(opt.DirData)
	if err != nil {
		log.Fatal().Err(err).Msg("open data directory failed")
	}
	db, err := clusterdb.OpenMemory()
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog database failed")
	}
	defer db.Close()

	self := wire.Address{Port: opt.Port}
	copy(self.IP[:], net.IPv4zero.To4())

	m := cluster.NewMetrics(wire.RoleData)
	h := data.New(log, db, fs, self, dnsAddr)
	n := cluster.NewNode(c, log, m, self.TCPAddr(), h)
	runWithShutdown(ctx, n)
}

func runClient(log zerolog.Logger, c *cluster.Config, dnsAddr wire.Address) {
	action := wire.ActionWrite
	if opt.Action == "read" {
		action = wire.ActionRead
	}
	self := wire.Address{Port: opt.Port}
	copy(self.IP[:], net.IPv4zero.To4())

	cc := &client.Config{
		Self:    self,
		DNSAddr: dnsAddr,
		Action:  action,
		Name:    opt.Name,
		Path:    opt.Path,
	}
	if err := client.Run(log, cc, c.ChannelWaitTimeout.Duration()); err != nil {
		log.Error().Err(err).Msg("client sequence failed")
		os.Exit(1)
	}
}

func runWithShutdown(ctx context.Context, n *cluster.Node) {
	go func() {
		<-ctx.Done()
		n.Stop()
	}()
	if err := n.Run(); err != nil {
		n.Logger.Fatal().Err(err).Msg("node failed")
	}
}

func selfAddress(port, masterPort uint16) wire.Address {
	p := port
	if !pflag.CommandLine.Changed("port") {
		p = masterPort
	}
	var a wire.Address
	copy(a.IP[:], net.IPv4zero.To4())
	a.Port = p
	return a
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}

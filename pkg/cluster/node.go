// Package cluster implements the shared per-node runtime: the
// listener/processor/dispatcher pipeline, configuration, logging and
// instrumentation common to every role (DNS, Master, Data, Client).
package cluster

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/pkg/wire"
)

// Handler is the role-specific state machine. Processor calls Handle for
// every packet it dequeues from the inbound channel, and calls Tick on every
// wake-up (including timeouts) so a role can drive time-based behavior (the
// Master's heartbeat broadcast) from the same loop.
type Handler interface {
	Handle(p wire.Packet, out chan<- wire.Packet)
	Tick(out chan<- wire.Packet)
}

// Node wires together the listener, processor and dispatcher workers that
// make up one running role instance.
type Node struct {
	Config  *Config
	Logger  zerolog.Logger
	Metrics *Metrics

	listenAddr *net.TCPAddr
	handler    Handler

	inboundIn   chan<- wire.Packet
	inboundOut  chan wire.Packet
	outboundIn  chan<- wire.Packet
	outboundOut chan wire.Packet

	stopping atomic.Bool
	listener net.Listener
}

// NewNode constructs a Node bound to listenAddr, running h as its processor
// state machine. Call Run to start the three workers; they stop when
// Node.Stop is called.
func NewNode(c *Config, l zerolog.Logger, m *Metrics, listenAddr *net.TCPAddr, h Handler) *Node {
	n := &Node{
		Config:     c,
		Logger:     l,
		Metrics:    m,
		listenAddr: listenAddr,
		handler:    h,
	}
	n.inboundIn, n.inboundOut = newUnboundedChan()
	n.outboundIn, n.outboundOut = newUnboundedChan()
	return n
}

// newUnboundedChan returns a send side and a receive side backed by an
// unbounded internal slice: sends on the send side never block no matter how
// many packets are queued or how slowly the receive side is drained. A
// relay goroutine is always ready to accept a send, offering it either
// straight into the receive side or, when the receive side isn't ready,
// onto the internal queue. Closing the send side closes the receive side
// once the queue has drained, satisfying the multi-producer/single-consumer
// unbounded-FIFO contract the two inter-worker channels require.
func newUnboundedChan() (chan<- wire.Packet, chan wire.Packet) {
	in := make(chan wire.Packet)
	out := make(chan wire.Packet)
	go func() {
		var queue []wire.Packet
		for {
			if len(queue) == 0 {
				p, ok := <-in
				if !ok {
					close(out)
					return
				}
				queue = append(queue, p)
				continue
			}
			select {
			case p, ok := <-in:
				if !ok {
					for _, p := range queue {
						out <- p
					}
					close(out)
					return
				}
				queue = append(queue, p)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()
	return in, out
}

// Run starts the listener, processor and dispatcher workers and blocks until
// all three have exited (which only happens after Stop is called, or the
// listener fails to bind in which case the returned error is non-nil and the
// other two workers are never started). On exit, the outbound channel is
// closed only after the processor has stopped producing to it, so the
// dispatcher can drain whatever remains and exit cleanly.
func (n *Node) Run() error {
	ln, err := net.ListenTCP("tcp", n.listenAddr)
	if err != nil {
		return &NodeCreationError{Stage: "listener", Err: err}
	}
	n.listener = ln

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); n.runDispatcher() }()
	go func() {
		defer wg.Done()
		n.runProcessor()
		close(n.outboundIn)
	}()
	n.runListener()
	wg.Wait()
	return nil
}

// Stop signals all three workers to exit and unblocks the listener's accept
// loop with a self-connect kick, per the shutdown protocol.
func (n *Node) Stop() {
	n.stopping.Store(true)
	if c, err := net.Dial("tcp", n.listenAddr.String()); err == nil {
		c.Close()
	}
}

// Send enqueues p on the outbound channel for the dispatcher to deliver. It
// never blocks: the outbound channel is unbounded, and producers (the
// processor) must never be made to wait on dispatch.
func (n *Node) Send(p wire.Packet) {
	n.outboundIn <- p
}

func (n *Node) runListener() {
	log := n.Logger.With().Str("component", "listener").Logger()
	for {
		conn, err := n.listener.Accept()
		if n.stopping.Load() {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("accept failed")
			continue
		}
		go n.handleConn(conn, log)
	}
}

func (n *Node) handleConn(conn net.Conn, log zerolog.Logger) {
	defer conn.Close()
	p, err := wire.ReadPacket(conn)
	if err != nil {
		log.Error().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("decode failed, dropping connection")
		n.Metrics.DroppedInbound.Inc()
		return
	}
	n.Metrics.RxKind(p.Kind)
	n.inboundIn <- p
}

func (n *Node) runProcessor() {
	log := n.Logger.With().Str("component", "processor").Logger()
	timeout := n.Config.ChannelWaitTimeout.Duration()
	for {
		if n.stopping.Load() {
			return
		}
		select {
		case p := <-n.inboundOut:
			log.Debug().Str("kind", p.Kind.String()).Str("sender", p.SenderAddr.String()).Msg("handling packet")
			n.handler.Handle(p, n.outboundIn)
		case <-time.After(timeout):
		}
		n.handler.Tick(n.outboundIn)
	}
}

func (n *Node) runDispatcher() {
	log := n.Logger.With().Str("component", "dispatcher").Logger()
	for p := range n.outboundOut {
		n.dispatch(p, log)
	}
}

func (n *Node) dispatch(p wire.Packet, log zerolog.Logger) {
	if err := SendPacket(p.DestAddr, p); err != nil {
		log.Error().Err(err).Str("dest", p.DestAddr.String()).Str("kind", p.Kind.String()).Msg("dispatch failed, dropping packet")
		n.Metrics.DispatchFailures.Inc()
		return
	}
	n.Metrics.TxKind(p.Kind)
}

// RecvOne accepts one connection on ln (already listening) and returns the
// packet decoded from it, or an error if none arrives within timeout. It is the Client driver's
// bounded-wait primitive: the Client's "processor" is a scripted sequence
// rather than a reactive loop, so it waits for one specific reply at a time
// instead of dispatching on an inbound channel.
func RecvOne(ln net.Listener, timeout time.Duration) (wire.Packet, error) {
	type result struct {
		p   wire.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer conn.Close()
		p, err := wire.ReadPacket(conn)
		ch <- result{p: p, err: err}
	}()
	select {
	case r := <-ch:
		return r.p, r.err
	case <-time.After(timeout):
		return wire.Packet{}, &RecvTimeoutError{Timeout: timeout}
	}
}

// SendPacket opens a fresh TCP connection to dest, writes p's encoded bytes,
// and closes. It is the one-shot send primitive used by the dispatcher
// worker and by the Client driver, which sends outside of the three-worker
// pipeline.
func SendPacket(dest wire.Address, p wire.Packet) error {
	b, err := wire.EncodePacket(p)
	if err != nil {
		return err
	}
	conn, err := net.DialTCP("tcp", nil, dest.TCPAddr())
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write(b); err != nil {
		return err
	}
	return nil
}

// Command retransmitdemo runs a two-sided live demonstration of the
// retransmitter module over a real TCP connection: a server side that
// accepts connections and a client side that dials, reconnecting with
// backoff whenever the socket is killed, showing that messages sent
// while disconnected are delivered once a new transport attaches.
//
// Usage:
//
//	retransmitdemo -server -addr :9001
//	retransmitdemo -client -addr 127.0.0.1:9001
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/udev-retransmit/retransmit/closefsm"
	"github.com/udev-retransmit/retransmit/frame"
	"github.com/udev-retransmit/retransmit/loadbalance"
	"github.com/udev-retransmit/retransmit/peerdir"
	"github.com/udev-retransmit/retransmit/reconnect"
	"github.com/udev-retransmit/retransmit/retransmitter"
	"github.com/udev-retransmit/retransmit/transport"
)

func main() {
	isServer := flag.Bool("server", false, "run the accepting side")
	isClient := flag.Bool("client", false, "run the dialing side")
	addr := flag.String("addr", ":9001", "server: listen address; client: dial address")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()

	switch {
	case *isServer:
		runServer(sugar, *addr)
	case *isClient:
		runClient(sugar, *addr)
	default:
		fmt.Fprintln(os.Stderr, "pass -server or -client")
		os.Exit(2)
	}
}

func runServer(logger *zap.SugaredLogger, addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalw("listen failed", "error", err)
	}
	logger.Infow("listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Errorw("accept failed", "error", err)
			continue
		}
		go serveConn(logger, conn)
	}
}

func serveConn(logger *zap.SugaredLogger, conn net.Conn) {
	r := retransmitter.New(retransmitter.Config{Logger: logger})
	t := transport.NewTCPTransport(conn, conn.RemoteAddr().String())
	if err := r.UseTransport(t); err != nil {
		logger.Errorw("use_transport failed", "error", err)
		return
	}
	r.OnMessage(func(p frame.Payload) {
		logger.Infow("received", "session", r.SessionID(), "text", string(p.Bytes))
	})
	r.OnClose(func(desc closefsm.CloseDescriptor) {
		logger.Infow("closed", "session", r.SessionID(), "code", desc.Code, "reason", desc.Reason)
	})
	t.Start()
}

func runClient(logger *zap.SugaredLogger, addr string) {
	peerID := "demo-server"
	dir := peerdir.NewStaticDirectory(map[string][]string{peerID: {addr}})
	picker := &loadbalance.RoundRobinPicker{}
	backoff := reconnect.NewBackoff(200*time.Millisecond, 5*time.Second)
	limiter := reconnect.NewLimiter(2, 1)

	var dialed transport.Transport
	dialFn := func(ctx context.Context, target string) error {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return err
		}
		dialed = transport.NewTCPTransport(conn, target)
		return nil
	}
	dialer := reconnect.NewDialer(dir, picker, dialFn,
		reconnect.LoggingHook(logger),
		reconnect.RateLimitHook(limiter),
		reconnect.BackoffHook(backoff),
	)

	r := retransmitter.New(retransmitter.Config{
		Logger: logger,
		TransportFactory: func(ctx context.Context) (transport.Transport, error) {
			dialed = nil
			if _, err := dialer.Attempt(ctx, peerID); err != nil {
				return nil, err
			}
			return dialed, nil
		},
	})
	r.OnMessage(func(p frame.Payload) {
		logger.Infow("received", "session", r.SessionID(), "text", string(p.Bytes))
	})

	_, err := dialer.Attempt(context.Background(), peerID)
	if err != nil || dialed == nil {
		logger.Fatalw("initial dial failed", "error", err)
	}
	if err := r.UseTransport(dialed); err != nil {
		logger.Fatalw("use_transport failed", "error", err)
	}
	if tp, ok := dialed.(*transport.TCPTransport); ok {
		tp.Start()
	}

	i := 0
	for range time.Tick(2 * time.Second) {
		i++
		msg := fmt.Sprintf("message-%d", i)
		if err := r.Send(frame.BytesPayload([]byte(msg))); err != nil {
			logger.Errorw("send failed", "error", err)
			continue
		}
		logger.Infow("sent", "text", msg, "buffered_amount", r.BufferedAmount())
	}
}

// Command echoserver runs the server transport over the loopback SDK with a
// handful of simulated peers. Every payload a peer sends is echoed back by
// the upstream queue server. It is a reference host loop: Update, upstream
// work, SendPackets, once per tick.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BonsonW/renetsteam/access"
	"github.com/BonsonW/renetsteam/logger"
	"github.com/BonsonW/renetsteam/metrics"
	"github.com/BonsonW/renetsteam/sdk"
	"github.com/BonsonW/renetsteam/sdk/loopback"
	"github.com/BonsonW/renetsteam/transport"
	"github.com/BonsonW/renetsteam/upstream"
)

type options struct {
	maxClients  int
	peers       int
	tick        time.Duration
	duration    time.Duration
	policy      string
	logLevel    string
	metricsAddr string
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.maxClients, "max-clients", 8, "admission bound")
	flag.IntVar(&o.peers, "peers", 4, "simulated peers to dial")
	flag.DurationVar(&o.tick, "tick", 50*time.Millisecond, "host tick interval")
	flag.DurationVar(&o.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	flag.StringVar(&o.policy, "policy", "public", "access policy: public, private, friends, list")
	flag.StringVar(&o.logLevel, "log-level", "info", "zerolog level")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Parse()
	return o
}

func buildPolicy(name string, peers []sdk.SteamID) (access.Policy, error) {
	switch name {
	case "public":
		return access.Public{}, nil
	case "private":
		return access.Private{}, nil
	case "friends":
		return access.FriendsOnly{}, nil
	case "list":
		// Admit every other peer.
		list := access.NewInList()
		for i, id := range peers {
			if i%2 == 0 {
				list.IDs.Add(id)
			}
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

func main() {
	o := parseFlags()

	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.NewConsoleLogger("echoserver", level)

	if err := run(o, log); err != nil {
		log.Error("echoserver failed", logger.Err(err))
		os.Exit(1)
	}
}

func run(o options, log logger.Logger) error {
	ids := make([]sdk.SteamID, o.peers)
	for i := range ids {
		ids[i] = sdk.SteamID(76561198000000000 + uint64(i))
	}

	policy, err := buildPolicy(o.policy, ids)
	if err != nil {
		return err
	}

	client := loopback.NewClient()
	for i, id := range ids {
		if i%2 == 1 {
			client.SetFriend(id, sdk.FriendFlagImmediate)
		}
	}

	m := metrics.New("echoserver")
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go serveMetrics(o.metricsAddr, reg, log)
	}

	tr, err := transport.New(client, transport.ServerConfig{
		MaxClients:   o.maxClients,
		AccessPolicy: policy,
		Logger:       log.With(logger.Field{Key: "subsystem", Value: "transport"}),
		Metrics:      m,
	})
	if err != nil {
		return err
	}

	socket := client.ListenSockets()[0]
	server := upstream.NewQueueServer(0)

	peers := make([]*loopback.Peer, len(ids))
	for i, id := range ids {
		peers[i] = socket.DialSteamID(id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	var seq uint64
	echoes := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down", logger.Field{Key: "echoes", Value: echoes})
			tr.DisconnectAll(server, true)
			return tr.Close()
		case <-ticker.C:
		}

		tr.Update(server)

		for _, id := range server.ClientsID() {
			for _, payload := range server.Receive(id) {
				if err := server.Send(id, payload); err != nil {
					log.Warn("echo failed", logger.Field{Key: "client_id", Value: id}, logger.Err(err))
				}
			}
		}

		tr.SendPackets(server)

		for _, p := range peers {
			echoes += len(p.Receive())
			if p.State() != loopback.PeerConnected {
				continue
			}

			seq++
			payload := binary.LittleEndian.AppendUint64(nil, seq)
			if err := p.Send(payload); err != nil {
				log.Warn("peer send failed", logger.Field{Key: "remote", Value: p.Remote().String()}, logger.Err(err))
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", logger.Field{Key: "addr", Value: addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", logger.Err(err))
	}
}

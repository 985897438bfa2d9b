// Package supervisor wires the coordinator's components into one
// running process: shared state, the command tracker and router, the
// dispatch table, discovery, the proclet controller client, the
// tunnel server sessions dial in through, and the HTTP read surface.
// It owns startup order and graceful shutdown, the way the teacher's
// cmd/otterscale entrypoint's wire.go/main.go did for its own
// component graph, generalized to this domain and hand-assembled
// since wire's code generator cannot run in this environment.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/USC-NSL/DDB/internal/cmdflow"
	"github.com/USC-NSL/DDB/internal/config"
	"github.com/USC-NSL/DDB/internal/discovery"
	"github.com/USC-NSL/DDB/internal/httpapi"
	"github.com/USC-NSL/DDB/internal/metrics"
	"github.com/USC-NSL/DDB/internal/proclet"
	"github.com/USC-NSL/DDB/internal/state"
	"github.com/USC-NSL/DDB/internal/transport"
	transporthttp "github.com/USC-NSL/DDB/internal/transport/http"
	"github.com/USC-NSL/DDB/internal/transport/tunnel"
)

// Supervisor holds the fully assembled component graph and runs it to
// completion, or until its context is cancelled.
type Supervisor struct {
	conf *config.Config
	log  *slog.Logger

	store    *state.Store
	metrics  *metrics.Metrics
	tracker  *cmdflow.Tracker
	router   *cmdflow.Router
	dispatch *cmdflow.Dispatch
	hc       *cmdflow.HandlerContext
	parser   *cmdflow.InputCmdParser

	procletClient *proclet.Client
	restoreMgr    *proclet.RestorationMgr

	discoveryProducer discovery.Producer

	tunnelServer *tunnel.Server
	httpServer   *transporthttp.Server
}

// New assembles every component from conf, in the coordinator's fixed
// init order: counters and state first, then the tracker (which the
// router depends on), then the router, then everything that sends
// commands through it, then the ambient transports last.
func New(conf *config.Config, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	store := state.NewStore()

	m, err := metrics.Init(store)
	if err != nil {
		return nil, fmt.Errorf("supervisor: init metrics: %w", err)
	}

	tracker := cmdflow.NewTracker(store, conf.TrackerShardCount())
	tracker.BindMetrics(m)

	router := cmdflow.NewRouter(store, tracker, func(line string) {
		log.Info("cmdflow emit", "line", line)
	})
	tracker.Bind(router)

	parser := cmdflow.NewInputCmdParser(store)

	var procletClient *proclet.Client
	var restoreMgr *proclet.RestorationMgr
	if addr := conf.ProcletControllerAddress(); addr != "" {
		procletClient, err = proclet.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("supervisor: dial proclet controller: %w", err)
		}
		procletClient.BindMetrics(m)
		restoreMgr = proclet.NewRestorationMgr(procletClient)
	}

	dispatch := cmdflow.NewDispatch()
	hc := &cmdflow.HandlerContext{
		Store:             store,
		Router:            router,
		Tracker:           tracker,
		Framework:         cmdflow.FrameworkGrpc,
		InterruptDeadline: conf.TrackerInterruptTimeout(),
		InterruptPoll:     conf.TrackerInterruptPoll(),
		RestoreMgr:        restoreMgr,
	}

	producer, err := buildDiscoveryProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build discovery producer: %w", err)
	}

	tunnelServer, err := tunnel.NewServer(
		tunnel.WithAddress(conf.TunnelAddress()),
		tunnel.WithKeySeed(conf.TunnelKeySeed()),
	)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build tunnel server: %w", err)
	}

	surface := httpapi.NewSurface(hc, dispatch, parser)
	httpServer, err := transporthttp.NewServer(
		transporthttp.WithAddress(conf.ListenAddress()),
		transporthttp.WithAllowedOrigins(conf.ListenAllowedOrigins()),
		transporthttp.WithMount(surface.Mount),
		transporthttp.WithHTTPLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build http server: %w", err)
	}

	return &Supervisor{
		conf:              conf,
		log:               log,
		store:             store,
		metrics:           m,
		tracker:           tracker,
		router:            router,
		dispatch:          dispatch,
		hc:                hc,
		parser:            parser,
		procletClient:     procletClient,
		restoreMgr:        restoreMgr,
		discoveryProducer: producer,
		tunnelServer:      tunnelServer,
		httpServer:        httpServer,
	}, nil
}

// buildDiscoveryProducer selects and configures the discovery backend
// named by conf.DiscoveryBackend(). Kubernetes wiring is left to the
// caller's in-cluster/kubeconfig client construction — the "kubernetes"
// backend returns an error here, since building a kubernetes.Interface
// is out of this package's scope.
func buildDiscoveryProducer(conf *config.Config) (discovery.Producer, error) {
	switch conf.DiscoveryBackend() {
	case "mqtt":
		return &discovery.MqttProducer{
			BrokerURL: conf.DiscoveryMQTTBrokerURL(),
			ClientID:  conf.DiscoveryMQTTClientID(),
			Topic:     conf.DiscoveryMQTTTopic(),
		}, nil
	case "kubernetes":
		return nil, fmt.Errorf("supervisor: kubernetes discovery backend requires an in-process kubernetes.Interface; construct it and use discovery.KubernetesProducer directly")
	case "static", "":
		return &discovery.StaticProducer{}, nil
	default:
		return nil, fmt.Errorf("supervisor: unknown discovery backend %q", conf.DiscoveryBackend())
	}
}

// Run starts every component and blocks until ctx is cancelled or an
// unrecoverable error occurs in any of them.
func (sv *Supervisor) Run(ctx context.Context) error {
	discoveryDone := make(chan error, 1)
	go func() {
		discoveryDone <- sv.discoveryProducer.Run(ctx, sv.onDiscover)
	}()

	serveErr := transport.Serve(ctx, sv.tunnelServer, sv.httpServer)

	if err := <-discoveryDone; err != nil && ctx.Err() == nil {
		sv.log.Warn("discovery producer exited", "error", err)
	}
	if sv.procletClient != nil {
		_ = sv.procletClient.Close()
	}
	return serveErr
}

// onDiscover registers a newly-seen debuggee as a session and joins it
// to its binary's group, replaying any breakpoints already recorded
// for that group the way a fresh instance joining mid-run must catch
// up (spec.md §4.7's ":sync-breakpoints" internal command).
func (sv *Supervisor) onDiscover(info discovery.ServiceInfo) {
	if sv.metrics != nil {
		sv.metrics.DiscoveryEvents.Add(context.Background(), 1)
	}

	sid := sv.store.IDs.Session.Next()
	meta := &state.ServiceMeta{
		IP:       info.IP,
		Tag:      info.Tag,
		PID:      info.PID,
		Hash:     info.Hash,
		Alias:    info.Alias,
		UserData: info.UserData,
	}
	sv.store.RegisterSession(sid, info.Tag, meta)

	if info.Hash != "" {
		sv.store.Groups.Join(info.Hash, info.Alias, sid)
		sv.log.Info("session discovered", "sid", sid, "tag", info.Tag, "group", info.Hash)

		sync := cmdflow.ParsedInput{CmdText: ":sync-breakpoints", Target: cmdflow.Session(sid), Internal: true}
		handler := sv.dispatch.Route(sync.CmdText)
		handler(sv.hc, sync)
	} else {
		sv.log.Info("session discovered", "sid", sid, "tag", info.Tag)
	}
}

// Attach wires an accepted transport connection for sid into the
// router so outbound commands can reach it, and starts pumping its
// inbound MI bytes into the tracker. Call this once a tunnel-side
// connection to a discovered debuggee's backend is established.
func (sv *Supervisor) Attach(sid uint64, conn net.Conn) *transport.SessionConn {
	return transport.NewSessionConn(sid, conn, sv.tracker, sv.router)
}

// Package hap ties every component together into a runnable accessory
// server: persisted identity and pairings, the attribute database, the
// HTTP/1.1 request pipeline, the event dispatcher, and mDNS advertisement.
package hap

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/event"
	"github.com/brutella/hap/log"
	"github.com/brutella/hap/mdns"
	"github.com/brutella/hap/server"
)

// debounceWindow caps how often a single characteristic's subscribers are
// notified; rapid repeated writes coalesce to the final value.
const debounceWindow = 100 * time.Millisecond

// Config configures one HAP server instance. Only Pin and StoragePath are
// commonly set; everything else defaults sensibly for local testing.
type Config struct {
	// StoragePath is the directory backing the persisted identity,
	// pairings and config version. Required.
	StoragePath string

	// Addr is the address to accept connections on, e.g. ":0" for any
	// free port. Defaults to ":0".
	Addr string

	// Pin is the 8-digit setup code an iOS client must enter, in
	// "NNN-NN-NNN" form. A random one is generated and persisted on
	// first run if empty.
	Pin string

	// LogLevel and LogFilePath configure the structured logger shared by
	// every subsystem; an empty LogFilePath logs to stderr.
	LogLevel    zerolog.Level
	LogFilePath string
}

// Server is a fully wired HAP accessory server: one or more Accessories
// exposed behind a single pair-setup/pair-verify identity.
type Server struct {
	cfg       Config
	container *accessory.Container
	identity  *db.Identity
	pairings  *db.Pairings
	configVer *db.ConfigVersion
	store     db.Store
	dispatcher *event.Dispatcher

	reqServer  *server.Server
	advertiser *mdns.Advertiser
	listener   net.Listener

	stopPrepareSweep context.CancelFunc
}

// NewServer creates a server exposing primary (aid 1) and any additional
// accessories (a bridge, if more than one is given). Storage is created or
// loaded from cfg.StoragePath.
func NewServer(cfg Config, primary *accessory.Accessory, extra ...*accessory.Accessory) (*Server, error) {
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("hap: StoragePath is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":0"
	}

	if cfg.LogFilePath != "" {
		log.ConfigureFile(cfg.LogLevel, cfg.LogFilePath)
	} else {
		log.Configure(cfg.LogLevel, nil)
	}

	store, err := db.NewFileStore(cfg.StoragePath, "hap")
	if err != nil {
		return nil, fmt.Errorf("hap: open storage: %w", err)
	}

	identity, err := db.LoadOrCreateIdentity(store)
	if err != nil {
		return nil, fmt.Errorf("hap: load identity: %w", err)
	}
	if cfg.Pin != "" {
		identity.Pincode = cfg.Pin
		if err := identity.Save(store); err != nil {
			return nil, fmt.Errorf("hap: persist pin: %w", err)
		}
	}

	pairings, err := db.LoadPairings(store)
	if err != nil {
		return nil, fmt.Errorf("hap: load pairings: %w", err)
	}
	configVer, err := db.LoadConfigVersion(store)
	if err != nil {
		return nil, fmt.Errorf("hap: load config version: %w", err)
	}
	iids, err := db.LoadIIDManager(store)
	if err != nil {
		return nil, fmt.Errorf("hap: load iid manager: %w", err)
	}

	container := accessory.NewContainer()
	container.AddAccessory(primary)
	for _, a := range extra {
		container.AddAccessory(a)
	}
	if len(extra) > 0 {
		container.IsBridge = true
	}
	// Aid is assigned by AddAccessory above, so attaching the manager only
	// now lets any service the embedder adds afterwards (at runtime) get a
	// restart-stable iid instead of one from the bare in-memory counter.
	primary.SetIIDManager(iids)
	for _, a := range extra {
		a.SetIIDManager(iids)
	}

	dispatcher := event.New(debounceWindow)
	// Server-originated changes (Characteristic.SetValue) on every
	// characteristic present now are published to all subscribed sessions.
	for _, a := range container.Accessories {
		aid := a.Aid
		for _, svc := range a.Services {
			for _, c := range svc.Characteristics {
				iid := c.IID
				c.OnValueUpdate(func(_ *characteristic.Characteristic, newValue, _, _ interface{}) {
					dispatcher.Publish(aid, iid, newValue, nil)
				})
			}
		}
	}

	reqServer := server.New(server.Config{
		Container:  container,
		Identity:   identity,
		Pairings:   pairings,
		Dispatcher: dispatcher,
	})

	s := &Server{
		cfg:        cfg,
		container:  container,
		identity:   identity,
		pairings:   pairings,
		configVer:  configVer,
		store:      store,
		dispatcher: dispatcher,
		reqServer:  reqServer,
	}
	return s, nil
}

// ListenAndServe opens the listener, starts advertising over mDNS, and
// blocks serving requests until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("hap: listen: %w", err)
	}
	s.listener = ln

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	s.advertiser = mdns.New(s.identity.DeviceID, port, s.container.Accessories[0].Category,
		s.identity, s.pairings, s.configVer, s.container)

	// Keep advertised pairing state current, and drop every live session the
	// moment the last admin unpairs: those connections were authenticated
	// against a controller identity that no longer has any standing.
	s.pairings.SetOnChange(func(hasAdmin bool) {
		s.advertiser.HandlePairingChange()
		if !hasAdmin {
			s.reqServer.CloseAllSessions()
		}
	})

	sweepCtx, cancel := context.WithCancel(ctx)
	s.stopPrepareSweep = cancel
	go s.sweepTopology(sweepCtx)

	go func() {
		if err := s.advertiser.Start(sweepCtx); err != nil {
			log.MDNS.Error().Err(err).Msg("mdns advertiser stopped")
		}
	}()
	if err := s.advertiser.CheckTopology(); err != nil {
		log.MDNS.Error().Err(err).Msg("initial topology check")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.reqServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown stops advertising and gracefully closes the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopPrepareSweep != nil {
		s.stopPrepareSweep()
	}
	if s.advertiser != nil {
		s.advertiser.Stop()
	}
	return s.reqServer.Shutdown(ctx)
}

// sweepTopology periodically checks accessory topology for changes so
// mDNS's config version stays current even when the embedder mutates the
// container directly (e.g. adding an accessory at runtime), rather than
// only ever reacting to inbound writes.
func (s *Server) sweepTopology(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.advertiser.CheckTopology(); err != nil {
				log.MDNS.Error().Err(err).Msg("topology sweep")
			}
		}
	}
}

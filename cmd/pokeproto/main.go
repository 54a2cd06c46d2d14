package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"pokeproto-go/internal/discovery"
	"pokeproto-go/internal/model"
	"pokeproto-go/internal/protocol"
	"pokeproto-go/pkg/logger"
	"pokeproto-go/pkg/metrics"
	"pokeproto-go/pkg/transport"
)

const version = "0.1.0"

func main() {
	logger.Banner("PokeProtocol Engine", version)

	cfg := loadConfig()

	role, err := parseRole(cfg.role)
	if err != nil {
		logger.Fatal("invalid --role: %v", err)
	}

	session := protocol.NewSession(role, cfg.trainerName)
	tr, err := transport.NewUDPTransport(cfg.host, cfg.gamePort, 100*time.Millisecond)
	if err != nil {
		logger.Fatal("cannot open game socket: %v", err)
	}
	defer tr.Close()

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	engine := protocol.NewEngine(session, tr, reg, model.NewSampleCatalog())

	logger.Info("role=%s trainer=%q listening on %s:%d", role, cfg.trainerName, cfg.host, cfg.gamePort)

	var announcer *discovery.Announcer
	if role == model.RoleHost && cfg.announce {
		announcer, err = discovery.NewAnnouncer(cfg.trainerName, cfg.gamePort, cfg.discoveryPort)
		if err != nil {
			logger.Warn("discovery announcer disabled: %v", err)
		} else {
			go announcer.Run()
			logger.Success("broadcasting GAME_ANNOUNCEMENT on port %d", cfg.discoveryPort)
		}
	}

	var httpSrv *http.Server
	if cfg.debugAddr != "" {
		httpSrv = startDebugServer(cfg.debugAddr, reg, session)
	}

	if role == model.RoleJoiner || role == model.RoleSpectator {
		peer, err := resolvePeer(cfg)
		if err != nil {
			logger.Fatal("cannot find a host to join: %v", err)
		}
		logger.Info("host found at %s", peer)

		if role == model.RoleJoiner {
			err = engine.Connect(peer)
		} else {
			err = engine.RequestSpectate(peer, cfg.trainerName)
		}
		if err != nil {
			logger.Fatal("cannot reach host: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go runNetworkLoop(engine, tr, errChan)

	select {
	case err := <-errChan:
		logger.Error("protocol error: %v", err)
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
	}

	logger.Info("shutting down...")
	if announcer != nil {
		announcer.Stop()
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}
	logger.Success("stopped")
}

// runNetworkLoop is the session's single network task: it alternates
// between reading one datagram (bounded to ~100ms by the transport) and
// ticking the reliability layer.
// A driver-input task (the interactive UI, out of core scope) would run
// alongside this one, serialized by the same Session.Mu.
func runNetworkLoop(engine *protocol.Engine, tr transport.Transport, errChan chan<- error) {
	for {
		data, from, ok := tr.Receive()
		if ok {
			engine.HandleDatagram(data, from)
		}

		if err := engine.Tick(); err != nil {
			errChan <- err
			return
		}

		engine.Session.Mu.Lock()
		running := engine.Session.Running
		engine.Session.Mu.Unlock()
		if !running {
			return
		}
	}
}

func startDebugServer(addr string, reg *metrics.Registry, session *protocol.Session) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		session.Mu.Lock()
		phase := session.Phase
		running := session.Running
		session.Mu.Unlock()

		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"phase":   phase,
			"running": running,
		})
	})
	router.GET("/metrics", gin.WrapH(reg.Handler()))
	router.GET("/debug/session", func(c *gin.Context) {
		session.Mu.Lock()
		resp := gin.H{
			"battle_id":  session.BattleID,
			"role":       session.Role,
			"phase":      session.Phase,
			"turn_owner": session.TurnOwner,
			"running":    session.Running,
			"trainer":    session.LocalName,
			"spectators": len(session.Spectators),
		}
		if session.LocalPokemon != nil {
			resp["local_pokemon"] = gin.H{
				"name":   session.LocalPokemon.Name,
				"hp":     session.LocalPokemon.HP,
				"max_hp": session.LocalPokemon.MaxHP,
			}
		}
		if session.RemotePokemon != nil {
			resp["remote_pokemon"] = gin.H{
				"name":   session.RemotePokemon.Name,
				"hp":     session.RemotePokemon.HP,
				"max_hp": session.RemotePokemon.MaxHP,
			}
		}
		session.Mu.Unlock()

		c.JSON(http.StatusOK, resp)
	})

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server: %v", err)
		}
	}()
	logger.Info("debug server listening on %s", addr)
	return srv
}

// resolvePeer supplies the host address a joiner or spectator needs: the
// --peer flag when given, otherwise the LAN discovery side-channel.
func resolvePeer(cfg config) (model.Addr, error) {
	if cfg.peer != "" {
		host, portStr, err := net.SplitHostPort(cfg.peer)
		if err != nil {
			return model.Addr{}, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return model.Addr{}, err
		}
		return model.Addr{IP: host, Port: port}, nil
	}

	logger.Info("listening for GAME_ANNOUNCEMENT broadcasts on port %d...", cfg.discoveryPort)
	found, err := discovery.Listen(cfg.discoveryPort, 30*time.Second)
	if err != nil {
		return model.Addr{}, err
	}
	logger.Success("discovered host %q at %s", found.HostName, found.Addr)
	return found.Addr, nil
}

func parseRole(s string) (model.Role, error) {
	switch s {
	case "host":
		return model.RoleHost, nil
	case "joiner":
		return model.RoleJoiner, nil
	case "spectator":
		return model.RoleSpectator, nil
	default:
		return "", errInvalidRole(s)
	}
}

type errInvalidRole string

func (e errInvalidRole) Error() string {
	return "unknown role " + string(e) + ", want host|joiner|spectator"
}

type config struct {
	role          string
	trainerName   string
	host          string
	gamePort      int
	discoveryPort int
	peer          string
	announce      bool
	debugAddr     string
}

// loadConfig parses flags into a config.
func loadConfig() config {
	role := flag.String("role", "host", "host|joiner|spectator")
	trainerName := flag.String("trainer-name", "trainer", "local trainer display name")
	host := flag.String("host", "0.0.0.0", "local bind address")
	gamePort := flag.Int("game-port", 5555, "UDP port for the battle protocol")
	discoveryPort := flag.Int("discovery-port", discovery.DefaultBroadcastPort, "UDP broadcast port for LAN discovery")
	peer := flag.String("peer", "", "joiner/spectator: host address as ip:port (empty = LAN discovery)")
	announce := flag.Bool("announce", true, "host: broadcast GAME_ANNOUNCEMENT on discovery-port")
	debugAddr := flag.String("debug-addr", ":9090", "address for the debug HTTP server (empty disables it)")
	flag.Parse()

	return config{
		role:          *role,
		trainerName:   *trainerName,
		host:          *host,
		gamePort:      *gamePort,
		discoveryPort: *discoveryPort,
		peer:          *peer,
		announce:      *announce,
		debugAddr:     *debugAddr,
	}
}

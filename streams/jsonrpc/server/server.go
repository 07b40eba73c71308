// Package server exposes a pool ledger over go-ethereum JSON-RPC: read and
// quote methods, dev-node mutations, token balances, and the state stream
// consumed by streams/jsonrpc/client.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/eventlog"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// RpcNamespace is the namespace under which the pool API and the streamer are registered.
	RpcNamespace                  = "amm"
	TokenNamespace                = "token"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	defaultBufferSize = 64
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of the RPC server.
type Config struct {
	Ledger *ledger.Ledger
	Events *eventlog.Log
	Differ *differ.StateDiffer
	Bank   *token.Bank
	Logger Logger

	// Registry is optional; when nil the server's collectors are not registered.
	Registry prometheus.Registerer

	// BufferSize is the per-subscriber record buffer. Defaults to 64.
	BufferSize int

	// DevMethods enables the mutating methods that act for an arbitrary
	// account: amm_addLiquidity, amm_swap, amm_removeLiquidity, token_approve
	// and token_transfer. Only for local development nodes.
	DevMethods bool
}

func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Events == nil {
		return errors.New("config: Events is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Bank == nil {
		return errors.New("config: Bank is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BufferSize < 0 {
		return errors.New("config: BufferSize cannot be negative")
	}
	return nil
}

type service struct {
	namespace string
	receiver  any
}

// Server wraps an rpc.Server with the pool and token services registered.
type Server struct {
	rpc    *rpc.Server
	logger Logger
}

// New builds the RPC server and registers every service.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bufferSize := cfg.BufferSize
	if bufferSize == 0 {
		bufferSize = defaultBufferSize
	}

	subscribers := promauto.With(cfg.Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "amm",
		Subsystem: "rpc",
		Name:      "state_stream_subscribers",
		Help:      "Open state stream subscriptions.",
	})

	srv := rpc.NewServer()
	poolAPI := &PoolAPI{ledger: cfg.Ledger, events: cfg.Events}
	streamAPI := &StreamAPI{
		ledger:      cfg.Ledger,
		events:      cfg.Events,
		differ:      cfg.Differ,
		logger:      cfg.Logger,
		bufferSize:  bufferSize,
		subscribers: subscribers,
	}
	tokenAPI := &TokenAPI{bank: cfg.Bank}

	services := []service{
		{RpcNamespace, poolAPI},
		{RpcNamespace, streamAPI},
		{TokenNamespace, tokenAPI},
	}
	if cfg.DevMethods {
		services = append(services,
			service{RpcNamespace, &DevPoolAPI{ledger: cfg.Ledger}},
			service{TokenNamespace, &DevTokenAPI{bank: cfg.Bank}},
		)
	}
	for _, s := range services {
		if err := srv.RegisterName(s.namespace, s.receiver); err != nil {
			srv.Stop()
			return nil, err
		}
	}

	cfg.Logger.Info("RPC services registered",
		"namespaces", []string{RpcNamespace, TokenNamespace},
		"dev_methods", cfg.DevMethods,
	)
	return &Server{rpc: srv, logger: cfg.Logger}, nil
}

// RPC returns the underlying rpc.Server, e.g. for rpc.DialInProc.
func (s *Server) RPC() *rpc.Server { return s.rpc }

// WebsocketHandler serves JSON-RPC over websocket, subscriptions included.
func (s *Server) WebsocketHandler(allowedOrigins []string) http.Handler {
	return s.rpc.WebsocketHandler(allowedOrigins)
}

// Handler serves JSON-RPC over websocket when the request asks for an upgrade
// and over plain HTTP POST otherwise.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	ws := s.rpc.WebsocketHandler(allowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			ws.ServeHTTP(w, r)
			return
		}
		s.rpc.ServeHTTP(w, r)
	})
}

// Stop closes every open codec and subscription.
func (s *Server) Stop() {
	s.rpc.Stop()
	s.logger.Info("RPC server stopped")
}

func isWebsocket(r *http.Request) bool {
	for _, v := range r.Header.Values("Upgrade") {
		if strings.EqualFold(v, "websocket") {
			return true
		}
	}
	return false
}

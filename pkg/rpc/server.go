package rpc

import (
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/warren/pkg/agent"
	"github.com/cuemby/warren/pkg/log"
)

// Server binds pkg/agent's operations to a Unix-domain gRPC listener.
// Grounded on the teacher's pkg/api.Server (NewServer/Start/Stop over a
// *grpc.Server) minus its mTLS credential loading: this daemon serves
// one host's own processes over a filesystem socket rather than a
// cluster's nodes over the network, so transport auth reduces to the
// socket file's own permissions.
type Server struct {
	socketPath string
	grpc       *grpc.Server
	health     *health.Server
	log        zerolog.Logger
}

// NewServer wires a *agent.Agent into a gRPC server listening at
// socketPath, with request logging and health checking attached.
func NewServer(a *agent.Agent, socketPath string) *Server {
	l := log.WithComponent("rpc")
	s := &Server{
		socketPath: socketPath,
		log:        l,
		health:     newHealthServer(),
	}

	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnaryInterceptor(loggingInterceptor(l)),
	)
	s.grpc.RegisterService(&ServiceDesc, newService(a))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Start listens on the configured Unix socket and serves until Stop is
// called or the listener errors. A stale socket file from an unclean
// previous shutdown is removed first — Listen("unix", ...) fails
// otherwise with "address already in use".
func (s *Server) Start() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("rpc: clear stale socket: %w", err)
	}
	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", s.socketPath, err)
	}

	s.log.Info().Str("socket", s.socketPath).Msg("rpc server listening")
	return s.grpc.Serve(lis)
}

// StartOn serves on a listener the caller already opened, instead of
// binding socketPath itself — the hook cmd/scagentd uses when a
// systemd-activated socket was handed down via LISTEN_FDS rather than
// created here.
func (s *Server) StartOn(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("rpc server listening on inherited socket")
	return s.grpc.Serve(lis)
}

// Stop stops accepting new RPCs and waits for in-flight ones to
// finish.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

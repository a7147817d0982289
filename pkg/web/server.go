package web

import (
	"context"
	"harnsnode/cmd/node/config"
	"harnsnode/pkg/broadcast"
	"harnsnode/pkg/generic"
	"harnsnode/pkg/link"
	"harnsnode/pkg/node"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

type Server struct {
	*generic.Server
	*config.Config
}

func NewServer(router *gin.Engine, port string, config *config.Config) (*Server, error) {
	s := &generic.Server{
		Router:   router,
		Port:     port,
		CertFile: config.CertFile,
		KeyFile:  config.KeyFile,
	}

	server := &Server{
		Server: s,
		Config: config,
	}

	link.RegisterMetrics()
	broadcast.RegisterMetrics()
	server.InstallHandlers()

	return server, nil
}

func (s *Server) InstallHandlers() {
	v1 := s.Router.Group("/api/v1")
	node.InstallHandler(v1, s.Config.Node)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Serve starts listening in the background. The returned function stops the
// listener and then the node.
func (s *Server) Serve() (func(ctx context.Context), error) {
	srv, err := s.Start()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Failed to shutdown server")
		}
		if err := s.Config.Node.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Failed to shutdown node")
		}
	}, nil
}

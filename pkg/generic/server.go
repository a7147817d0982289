package generic

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

type Server struct {
	Router   *gin.Engine
	Port     string
	CertFile string
	KeyFile  string
}

// Start listens in the background, with TLS when both files are set.
func (s *Server) Start() (*http.Server, error) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.Port),
		Handler: s.Router,
	}
	if len(s.CertFile) == 0 || len(s.KeyFile) == 0 {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "Server stopped", "addr", srv.Addr)
			}
		}()
		return srv, nil
	}

	x509KeyPair, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
	if err != nil {
		return nil, err
	}
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{x509KeyPair},
	}
	go func() {
		if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "Server stopped", "addr", srv.Addr)
		}
	}()
	return srv, nil
}

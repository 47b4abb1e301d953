package server

import (
	"crypto/tls"
	"fmt"
	"net/http"
)

// configureTLS sets up static TLS from the configured certificate files
func (s *Server) configureTLS(httpServer *http.Server) error {
	if !s.AppConfig.Server.TLS.Enabled {
		fmt.Printf("Starting server on http://%s\n", httpServer.Addr)
		fmt.Println("TLS: disabled (HTTP only)")
		return nil
	}

	tlsCfg := s.AppConfig.Server.TLS
	if tlsCfg.CertFile == "" || tlsCfg.KeyFile == "" {
		return fmt.Errorf("TLS is enabled but certFile or keyFile is missing")
	}

	// Fail early on an unloadable pair instead of at the first handshake.
	if _, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile); err != nil {
		return fmt.Errorf("failed to load TLS cert/key: %w", err)
	}

	httpServer.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	fmt.Printf("Starting server with HTTPS on https://%s\n", httpServer.Addr)
	return nil
}

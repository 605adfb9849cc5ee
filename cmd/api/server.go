package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ledger/internal/shared/config"
	"ledger/internal/shared/middleware"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler      http.Handler
	Addr         string
	TLSEnabled   bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
	AllowedHosts []string
}

// Servers is the main API server plus the optional HTTP to HTTPS redirector.
type Servers struct {
	cfg      ServerConfig
	main     *http.Server
	redirect *http.Server
	logger   *zap.Logger
}

// NewServers builds the servers without starting them.
func NewServers(scfg ServerConfig, logger *zap.Logger) *Servers {
	srv := &http.Server{
		Addr:         scfg.Addr,
		Handler:      scfg.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s := &Servers{cfg: scfg, main: srv, logger: logger}
	if scfg.TLSEnabled && scfg.RedirectHTTP {
		s.redirect = createRedirectServer(scfg.AllowedHosts)
	}
	return s
}

// Serve blocks until the main server stops. http.ErrServerClosed is not an error.
func (s *Servers) Serve() error {
	if s.redirect != nil {
		go func() {
			s.logger.Info("HTTP redirect server starting", zap.String("addr", s.redirect.Addr))
			if err := s.redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP redirect server error", zap.Error(err))
			}
		}()
	}

	var err error
	if s.cfg.TLSEnabled {
		s.logger.Info("HTTPS server starting", zap.String("addr", s.cfg.Addr))
		err = s.main.ListenAndServeTLS(s.cfg.CertPath, s.cfg.KeyPath)
	} else {
		s.logger.Info("HTTP server starting", zap.String("addr", s.cfg.Addr))
		err = s.main.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests on both servers.
func (s *Servers) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		if err := s.redirect.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down HTTP redirect server", zap.Error(err))
		}
	}
	return s.main.Shutdown(ctx)
}

// createRedirectServer creates an HTTP server that redirects all requests to HTTPS.
func createRedirectServer(allowedHosts []string) *http.Server {
	return &http.Server{
		Addr:         ":80",
		Handler:      redirectHandler(allowedHosts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func redirectHandler(allowedHosts []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}

		if !middleware.IsHostAllowed(host, allowedHosts) {
			http.Error(w, "Invalid host", http.StatusBadRequest)
			return
		}

		httpsURL := "https://" + canonicalHost(host) + r.RequestURI
		http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
	})
}

// canonicalHost drops the port so the redirect lands on 443.
func canonicalHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:      handler,
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		TLSEnabled:   cfg.TLS.Enabled,
		CertPath:     cfg.TLS.CertPath,
		KeyPath:      cfg.TLS.KeyPath,
		RedirectHTTP: cfg.TLS.RedirectHTTP,
		AllowedHosts: cfg.Server.AllowedHosts,
	}
}

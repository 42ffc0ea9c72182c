package server

import (
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
)

type Options struct {
	Handler      http.Handler
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HTTPServer wraps the application's router with response compression and
// the configured timeouts.
type HTTPServer struct {
	opts Options
}

func New(opts Options) *HTTPServer {
	return &HTTPServer{opts: opts}
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.opts.Handler)
}

func (s *HTTPServer) Start(socketAddress string) error {
	srv := &http.Server{
		Addr:         socketAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	return srv.ListenAndServe()
}

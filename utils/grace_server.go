package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// inheritedListenerEnv marks a child started by a SIGUSR2 restart; its
	// listener arrives as fd 3.
	inheritedListenerEnv = "BOTTLECAPS_INHERIT_LISTENER"
	inheritedListenerFD  = 3
)

// ServerTimeouts bounds request handling and the drain on shutdown.
type ServerTimeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// DefaultServerTimeouts are used by GraceServer.
var DefaultServerTimeouts = ServerTimeouts{
	Read:     60 * time.Second,
	Write:    60 * time.Second,
	Shutdown: 30 * time.Second,
}

// Server wraps http.Server with signal driven shutdown and SIGUSR2 restart.
type Server struct {
	*http.Server

	listener        net.Listener
	inherited       bool
	shutdownTimeout time.Duration
	signals         chan os.Signal
	done            chan struct{}
}

// NewServer creates a Server. Zero timeouts fall back to DefaultServerTimeouts.
func NewServer(addr string, handler http.Handler, t ServerTimeouts) *Server {
	if t.Read <= 0 {
		t.Read = DefaultServerTimeouts.Read
	}
	if t.Write <= 0 {
		t.Write = DefaultServerTimeouts.Write
	}
	if t.Shutdown <= 0 {
		t.Shutdown = DefaultServerTimeouts.Shutdown
	}
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  t.Read,
			WriteTimeout: t.Write,
		},
		inherited:       os.Getenv(inheritedListenerEnv) != "",
		shutdownTimeout: t.Shutdown,
		signals:         make(chan os.Signal, 1),
		done:            make(chan struct{}),
	}
}

// ListenAndServe serves until SIGINT/SIGTERM, or until a SIGUSR2 restart hands
// the listener to a new process. It blocks until the drain finished.
func (srv *Server) ListenAndServe() error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln

	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(srv.signals)
	go srv.watchSignals()

	err = srv.Serve(ln)
	<-srv.done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAddr returns the bound address once ListenAndServe has started.
func (srv *Server) ListenAddr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

func (srv *Server) listen() (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedListenerFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) watchSignals() {
	for sig := range srv.signals {
		switch sig {
		case syscall.SIGUSR2:
			pid, err := srv.forkWithListener()
			if err != nil {
				Logger.Error("restart failed, still serving", zap.Error(err))
				continue
			}
			Logger.Info("restarted, draining old process", zap.Int("new_pid", pid))
		default:
			Logger.Info("shutting down", zap.String("signal", sig.String()))
		}
		srv.drain()
		return
	}
}

// drain stops accepting, waits for in-flight requests and runs the
// RegisterOnShutdown hooks.
func (srv *Server) drain() {
	defer close(srv.done)
	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Logger.Error("shutdown incomplete", zap.Error(err))
		return
	}
	Logger.Info("server stopped")
}

// forkWithListener starts a copy of this binary that inherits the listener.
func (srv *Server) forkWithListener() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, errors.New("listener is not a TCP listener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != inheritedListenerEnv+"=1" {
			env = append(env, e)
		}
	}
	env = append(env, inheritedListenerEnv+"=1")

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("fork: %w", err)
	}
	return pid, nil
}

// GraceServer serves handler on addr with graceful shutdown. Each onShutdown
// hook runs once when the drain starts.
func GraceServer(addr string, handler http.Handler, onShutdown ...func()) error {
	srv := NewServer(addr, handler, DefaultServerTimeouts)
	for _, f := range onShutdown {
		srv.RegisterOnShutdown(f)
	}
	return srv.ListenAndServe()
}

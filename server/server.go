package server

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/boypt/dlbridge/bridge"
	"github.com/boypt/dlbridge/core"
	"github.com/boypt/dlbridge/engine"
	"github.com/boypt/dlbridge/server/httpmiddleware"
	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/cookieauth"
	"github.com/jpillora/requestlog"
	"github.com/jpillora/velox"
	"github.com/skratchdot/open-golang/open"
)

// Server serves the method channel over HTTP and keeps the state synced
// to /sync clients.
type Server struct {
	//config
	Title      string `opts:"help=Title of this instance, env=TITLE"`
	Port       int    `opts:"help=Listening port, env=PORT"`
	Host       string `opts:"help=Listening interface (default all)"`
	Auth       string `opts:"help=Optional basic auth in form 'user:password', env=AUTH"`
	ConfigPath string `opts:"help=Configuration file path"`
	KeyPath    string `opts:"help=TLS Key file path"`
	CertPath   string `opts:"help=TLS Certicate file path, short=r"`
	Log        bool   `opts:"help=Enable request logging"`
	Open       bool   `opts:"help=Open now with your default browser"`
	Debug      bool   `opts:"help=Debug app"`

	config *engine.Config
	plugin *bridge.Plugin

	//file watcher
	watcher *fsnotify.Watcher
	//optional redis event sink
	sink *redisSink
	//feed url -> newest seen item GUID
	rssCache map[string]string
	rssMu    sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	state struct {
		velox.State
		sync.Mutex
		Config     engine.Config
		Events     []eventRecord
		GlobalStat globalStat
		Users      map[string]string
		Stats      struct {
			Title   string
			Version string
			Runtime string
			Uptime  time.Time
			Session string
			System  stats
		}
	}
}

// Run the server
func (s *Server) Run(version string) error {
	isTLS := s.CertPath != "" || s.KeyPath != "" //poor man's XOR
	if isTLS && (s.CertPath == "" || s.KeyPath == "") {
		return fmt.Errorf("You must provide both key and cert paths")
	}

	c, err := engine.InitConf(s.ConfigPath)
	if err != nil {
		return err
	}
	s.setup(version, c)
	if c.RedisAddr != "" {
		sink, err := newRedisSink(c.RedisAddr, c.RedisChannel)
		if err != nil {
			log().Warnf("redis sink disabled: %s", err)
		} else {
			s.sink = sink
		}
	}
	if err := s.start(engine.NewLibrary(*c)); err != nil {
		s.Close()
		return fmt.Errorf("engine start failed: %w", err)
	}
	defer s.Close()

	if err := s.startWatcher(c.WatchDirectory); err != nil {
		log().Warnf("watcher disabled: %s", err)
	}
	s.backgroundRoutines()

	host := s.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, s.Port)
	proto := "http"
	if isTLS {
		proto += "s"
	}
	if s.Open {
		openhost := host
		if openhost == "0.0.0.0" {
			openhost = "localhost"
		}
		go func() {
			time.Sleep(1 * time.Second)
			if err := open.Run(fmt.Sprintf("%s://%s:%d", proto, openhost, s.Port)); err != nil {
				log().Warnf("open browser: %s", err)
			}
		}()
	}

	log().Infof("Listening at %s://%s", proto, addr)
	server := &http.Server{
		//disable http2 due to velox bug
		TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
		//address
		Addr: addr,
		//handler stack
		Handler: s.handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log().Infof("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log().Warnf("http shutdown: %s", err)
		}
	}()

	if isTLS {
		err = server.ListenAndServeTLS(s.CertPath, s.KeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) setup(version string, c *engine.Config) {
	s.config = c
	s.done = make(chan struct{})
	s.rssCache = map[string]string{}
	s.state.Config = *c
	s.state.Users = map[string]string{}
	s.state.Events = []eventRecord{}
	s.state.Stats.Title = s.Title
	s.state.Stats.Version = version
	s.state.Stats.Runtime = strings.TrimPrefix(runtime.Version(), "go")
	s.state.Stats.Uptime = time.Now()
	s.state.Stats.System.pusher = velox.Pusher(&s.state)
}

// start brings the engine up the way a client of the method channel would:
// libraryInit, sessionNew, startRunLoop.
func (s *Server) start(lib engine.Library) error {
	s.plugin = bridge.New(lib, core.Options{StopTimeout: s.config.StopTimeout})
	s.plugin.Attach(bridge.ChannelFunc(s.onChannelMethod))

	if _, err := s.plugin.Invoke("libraryInit", nil); err != nil {
		return err
	}
	if _, err := s.plugin.Invoke("sessionNew", bridge.Args{
		"options":     s.config.SessionOptions().Map(),
		"keepRunning": s.config.KeepRunning,
	}); err != nil {
		return err
	}
	if _, err := s.plugin.Invoke("startRunLoop", nil); err != nil {
		return err
	}
	id := s.core().SessionID()
	s.state.Lock()
	s.state.Stats.Session = id
	s.state.Unlock()
	log().Infof("engine started, session %s", id)
	return nil
}

func (s *Server) core() *core.State {
	return s.plugin.State()
}

// Close stops the background routines and the watcher and disposes the
// engine. Close is idempotent.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		if s.watcher != nil {
			if err := s.watcher.Close(); err != nil {
				log().Debugf("watcher close: %s", err)
			}
		}
		if s.plugin != nil {
			s.plugin.Dispose()
		}
		if s.sink != nil {
			s.sink.Close()
		}
		log().Infof("server closed")
	})
}

//handler chain, from last to first
func (s *Server) handler() http.Handler {
	h := http.Handler(http.HandlerFunc(s.webHandle))
	//gzip
	gzipWrap, _ := gziphandler.NewGzipLevelAndMinSize(gzip.DefaultCompression, 0)
	h = gzipWrap(h)
	//auth
	if s.Auth != "" {
		user := s.Auth
		pass := ""
		if s := strings.SplitN(s.Auth, ":", 2); len(s) == 2 {
			user = s[0]
			pass = s[1]
		}
		h = cookieauth.New().SetUserPass(user, pass).Wrap(h)
		log().Infof("Enabled HTTP authentication")
	}
	h = httpmiddleware.Liveness(h)
	if s.Log {
		h = requestlog.Wrap(h)
	}
	return h
}

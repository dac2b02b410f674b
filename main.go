package main

import (
	"os"

	"github.com/boypt/dlbridge/bridge"
	"github.com/boypt/dlbridge/common"
	"github.com/boypt/dlbridge/core"
	"github.com/boypt/dlbridge/engine"
	"github.com/boypt/dlbridge/server"
	"github.com/jpillora/opts"
	"go.uber.org/zap"
)

var VERSION = "0.0.0-src" //set with ldflags

func main() {
	s := server.Server{
		Title:      "dlbridge",
		Port:       3000,
		ConfigPath: "dlbridge.yaml",
	}

	opts.New(&s).Version(VERSION).PkgRepo().Parse()

	var (
		l   *zap.Logger
		err error
	)
	if s.Debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	common.Must(err)
	defer l.Sync()

	undo := zap.RedirectStdLog(l)
	defer undo()
	common.SetLogger(l)
	core.SetLogger(l)
	bridge.SetLogger(l)
	engine.SetLogger(l)
	server.SetLogger(l)

	l.Info("starting", zap.String("version", VERSION))
	if err := s.Run(VERSION); err != nil {
		l.Error("server stopped", zap.Error(err))
		l.Sync()
		os.Exit(1)
	}
}

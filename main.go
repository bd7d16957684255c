/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/flowforge/engine"
	"github.com/spaghettifunk/flowforge/engine/core"
	"github.com/spaghettifunk/flowforge/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML or YAML configuration file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			core.LogFatal("failed to load configuration: %s", err)
		}
		core.LogWarn("%s not found, using the default configuration", *configPath)
		cfg = core.DefaultConfig()
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("unknown log level %q: %s", cfg.Log.Level, err)
	}

	tb, err := testbed.NewTestGame(cfg)
	if err != nil {
		core.LogFatal(err.Error())
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// The loop owns the window and the device, so a signal only asks it to stop.
	go func() {
		<-sigCh
		e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}

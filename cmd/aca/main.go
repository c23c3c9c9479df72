package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkommoju/alcor-control-agent/internal/authority"
	"github.com/pkommoju/alcor-control-agent/internal/capture"
	"github.com/pkommoju/alcor-control-agent/internal/config"
	"github.com/pkommoju/alcor-control-agent/internal/env"
	"github.com/pkommoju/alcor-control-agent/internal/exporter"
	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/internal/ondemand"
	"github.com/pkommoju/alcor-control-agent/internal/programmer"
	"github.com/pkommoju/alcor-control-agent/pkg/packet"
	"golang.org/x/sync/errgroup"
)

const fullAppName = "Alcor Control Agent. "

func requireRoot() {
	user, err := user.Current()
	if err != nil {
		logger.Error().Println(fullAppName, "current user", err)
		os.Exit(-14) // errno.h -EFAULT
	} else if user.Uid != "0" {
		logger.Error().Println(fullAppName, "insufficient permitions. Please run with `sudo` or as root.")
		os.Exit(-13) // errno.h -EACCES
	}
}

func agentLock() {
	pidStr, _ := os.ReadFile(env.LockFile)
	pid, _ := strconv.Atoi(strings.TrimSpace(string(pidStr)))

	if pid > 0 {
		_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
		if err == nil {
			// Another agent instance is running. Exit.
			logger.Error().Println(fullAppName, "Another agent instance is running")
			logger.Error().Println(fullAppName, "check lock file", env.LockFile)
			os.Exit(-16) // errno.h -EBUSY
		}
		logger.Warning().Println(fullAppName, "residual lock file found. An agent was killed or crashed before?")
	}

	os.WriteFile(env.LockFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func agentUnlock() {
	os.Remove(env.LockFile)
}

// Packets the engine does not resolve stay with the switch default pipeline
func unresolvedFallback(pkt *packet.Packet, raw []byte) {
	logger.Debug().Println(fullAppName, "not resolving", pkt, len(raw), "bytes")
}

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	execName := os.Args[0]

	showVersionAndExit := flag.Bool("version", false, "Show version and exit")

	flag.Parse()
	if *showVersionAndExit {
		fmt.Printf("%s (%s):\t%s\n\n", fullAppName, execName, config.GetVersion())
		return
	}

	requireRoot()
	env.Init()
	agentLock()
	defer agentUnlock()

	config.Init()
	defer config.Close()
	logger.SetupGlobalLogger(config.GetDebugLevel(), os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := authority.New(ctx, authority.Config{
		URL:        config.GetAuthorityURL(),
		Token:      config.GetAgentToken(),
		DeviceID:   config.GetDeviceID(),
		DeviceName: config.GetAgentName(),
		Version:    config.GetUserAgent(),
		Timeout:    config.WebsocketTimeout(),
	})
	if err != nil {
		logger.Error().Println(fullAppName, "Could not connect to authority", err)
		exitCode = -111 // errno.h -ECONNREFUSED
		return
	}

	prog, err := programmer.New(config.GetProgrammerType())
	if err != nil {
		logger.Error().Println(fullAppName, err)
		transport.Close()
		exitCode = -22 // errno.h -EINVAL
		return
	}

	engine, err := ondemand.New(ondemand.Config{
		Workers:       config.GetWorkers(),
		DwellTime:     config.DwellTime(),
		SweepInterval: config.SweepInterval(),
	}, transport, prog, ondemand.WithFallback(unresolvedFallback))
	if err != nil {
		logger.Error().Println(fullAppName, "Could not create engine", err)
		transport.Close()
		exitCode = -12 // errno.h -ENOMEM
		return
	}
	if err := engine.Start(ctx); err != nil {
		logger.Error().Println(fullAppName, "Could not start engine", err)
		transport.Close()
		exitCode = -12
		return
	}

	logger.Info().Println(fullAppName, execName, config.GetVersion(), "started.")
	logger.Info().Println(fullAppName, "Using programmer: ", config.GetProgrammerName(config.GetProgrammerType()))

	services, sctx := errgroup.WithContext(ctx)

	if port := config.GetExporterPort(); port > 0 {
		exp, err := exporter.New(port, engine.Collector())
		if err != nil {
			logger.Error().Println(fullAppName, "metrics exporter", err)
		} else {
			services.Go(func() error { return exp.Run(sctx) })
		}
	}

	if ifname := config.GetCaptureInterface(); ifname != "" {
		c, err := capture.Open(ifname, engine)
		if err != nil {
			logger.Error().Println(fullAppName, err)
			exitCode = -19 // errno.h -ENODEV
			engine.Stop()
			return
		}
		services.Go(func() error { return c.Run(sctx) })
	}

	// Wait for SIGINT or SIGTERM to terminate app
	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)

	select {
	case <-terminate:
		logger.Info().Println(fullAppName, "terminating")
	case <-engine.Done():
		logger.Error().Println(fullAppName, "engine terminated unexpectedly")
		exitCode = -5 // errno.h -EIO
	case <-sctx.Done():
		logger.Error().Println(fullAppName, "service terminated unexpectedly")
		exitCode = -5
	}

	if err := engine.Stop(); err != nil {
		logger.Error().Println(fullAppName, "engine stop:", err)
	}
	cancel()
	if err := services.Wait(); err != nil {
		logger.Error().Println(fullAppName, err)
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/xplhald/xplhald/internal/admin"
	"github.com/xplhald/xplhald/internal/config"
	"github.com/xplhald/xplhald/internal/dslexec"
	"github.com/xplhald/xplhald/internal/metrics"
	"github.com/xplhald/xplhald/internal/notify"
	"github.com/xplhald/xplhald/internal/orchestrator"
	"github.com/xplhald/xplhald/internal/scheduler"
	"github.com/xplhald/xplhald/internal/store"
	"github.com/xplhald/xplhald/internal/xplmsg"
	"github.com/xplhald/xplhald/internal/xplnet"
	"github.com/xplhald/xplhald/internal/xplservice"
	"github.com/xplhald/xplhald/pkg/log"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var flagConfigFile, flagInstance string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the global config options by those specified in `config.json`")
	flag.StringVar(&flagInstance, "instance", "main", "Instance id embedded in this daemon's own xpl-xplhald-<instance> identity")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("config: %s", err.Error())
	}
	log.SetLogLevel(config.Keys.DebugLevel)

	st, err := store.Open(config.Keys.DB, config.Keys.StoreBusyRetries, config.Keys.StoreBusyBackoffMs)
	if err != nil {
		log.Fatalf("store: %s", err.Error())
	}
	defer st.Close()

	recvCfg := xplnet.NewConfig(config.Keys.Interface)
	receiver, err := xplnet.NewReceiver(recvCfg)
	if err != nil {
		log.Fatalf("xplnet: %s", err.Error())
	}

	ownIdentity := xplmsg.Identity{Vendor: "xpl", Device: "xplhald", Instance: flagInstance}

	sendFrame := func(m *xplmsg.Message) error {
		payload, err := xplmsg.Encode(m)
		if err != nil {
			metrics.MessagesDropped.WithLabelValues("encode-error").Inc()
			return fmt.Errorf("encode outbound frame: %w", err)
		}
		// Every outbound frame, targeted or broadcast, goes out on the
		// interface's broadcast address: xPL targeting is an
		// application-layer filter, not a network-layer unicast.
		addr, err := receiver.BroadcastAddr()
		if err != nil {
			return fmt.Errorf("resolve broadcast address: %w", err)
		}
		if err := receiver.Send(payload, addr); err != nil {
			return err
		}
		metrics.MessagesSent.Inc()
		return nil
	}

	notifier, err := notify.Connect(config.Keys.NATSAddr, config.Keys.NATSSubject)
	if err != nil {
		log.Fatalf("notify: %s", err.Error())
	}
	defer notifier.Close()

	orch := orchestrator.New(st, ownIdentity, dslexec.Sender(sendFrame), notifier)

	registry := xplservice.NewRegistry(func(s *xplservice.Service) error {
		remoteIP := ""
		if addr, err := receiver.BroadcastAddr(); err == nil {
			remoteIP = addr.IP.String()
		}
		hb := xplservice.BuildHeartbeat(s, receiver.LocalPort(), remoteIP)
		s.SetCachedHeartbeat(mustEncode(hb))
		return sendFrame(hb)
	})

	daemonSvc := xplservice.NewService(ownIdentity, xplservice.Normal, false, func(m *xplmsg.Message) {
		if m.Kind == xplmsg.Trigger {
			orch.OnTrigger(m)
		}
	})
	daemonSvc.SetExpectedPort(receiver.LocalPort())
	registry.Register(daemonSvc)

	sched := scheduler.New(config.Keys.Latitude, config.Keys.Longitude)
	if err := st.IterateSchedule(func(row store.ScheduleRow) error {
		scriptName := row.ScriptName
		if err := sched.Register(row.Name, row.CronExpr, func(arg string) {
			if err := orch.RunScriptByName(arg); err != nil {
				log.Errorf("scheduled script %s: %v", arg, err)
			}
		}, scriptName); err != nil {
			// A malformed row is logged and skipped; later rows still load.
			log.Errorf("register schedule %s: %v", row.Name, err)
		}
		return nil
	}); err != nil {
		log.Errorf("register schedule: %v", err)
	}
	sched.Start()
	defer sched.Shutdown()

	adminServer, err := admin.NewServer(config.Keys.AdminAddr, st, orch.RunScriptByName)
	if err != nil {
		log.Fatalf("admin: %s", err.Error())
	}
	orch.SetMonitorPublisher(adminServer.PublishMonitor)

	metricsServer := admin.NewMetricsServer(config.Keys.MetricsAddr)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		receiver.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case dg, ok := <-receiver.Datagrams():
				if !ok {
					return
				}
				m, err := xplmsg.Parse(dg.Payload)
				if err != nil {
					metrics.MessagesDropped.WithLabelValues("parse-error").Inc()
					log.Debugf("drop malformed frame from %s: %v", dg.From, err)
					continue
				}
				registry.Dispatch(m)
				if m.IsHeartbeat() {
					orch.OnHeartbeat(m)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := registry.Tick(); err != nil {
					log.Errorf("heartbeat tick: %v", err)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lastTick := receiver.WatchdogTick()
		stalls := 0
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var alive bool
				lastTick, alive = receiver.Alive(lastTick)
				if alive {
					stalls = 0
					continue
				}
				stalls++
				log.Errorf("receive goroutine watchdog stalled (%d/3)", stalls)
				if stalls >= 3 {
					log.Fatalf("receive goroutine wedged: no progress for 3 consecutive watchdog polls")
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminServer.Serve(); err != nil {
			log.Errorf("admin server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsServer.Serve(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutting down")

	cancel()
	adminServer.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsServer.Shutdown(shutdownCtx)
	shutdownCancel()
	if err := receiver.Stop(); err != nil {
		log.Errorf("receiver stop: %v", err)
	}

	wg.Wait()
	log.Info("graceful shutdown completed")
}

func mustEncode(m *xplmsg.Message) []byte {
	payload, err := xplmsg.Encode(m)
	if err != nil {
		return nil
	}
	return payload
}

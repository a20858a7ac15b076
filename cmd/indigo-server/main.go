// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/indigo-astronomy/indigo-bus/internal/blob"
	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/fixture"
	"github.com/indigo-astronomy/indigo-bus/internal/housekeeping"
	"github.com/indigo-astronomy/indigo-bus/internal/server"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
	"github.com/indigo-astronomy/indigo-bus/pkg/runtimeEnv"
)

// ProgramConfig is the JSON configuration format, following the same
// struct-plus-flag-overrides shape the rest of the stack uses.
type ProgramConfig struct {
	// Addr is where the bus listens for XML, JSON and HTTP traffic
	// alike (single port, first-byte dispatch).
	Addr string `json:"addr"`

	// Drop root permissions once .env was read and the port was taken.
	User  string `json:"user"`
	Group string `json:"group"`

	// BlobSweep overrides how often the BLOB cache reaps stale entries.
	BlobSweep string `json:"blob-sweep"`

	// Devices lists the simulator devices to attach at startup, since
	// no real hardware driver ships with this server.
	Devices []string `json:"devices"`
}

var programConfig = ProgramConfig{
	Addr:      ":7624",
	BlobSweep: "5m",
	Devices:   []string{"Mount Simulator"},
}

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the global config options by those specified in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if f, err := os.Open(flagConfigFile); err == nil {
		dec := json.NewDecoder(f)
		if err := dec.Decode(&programConfig); err != nil {
			log.Fatal(err)
		}
		f.Close()
	} else if !os.IsNotExist(err) || flagConfigFile != "./config.json" {
		log.Fatal(err)
	}

	b := bus.New()
	blobs := blob.NewCache()

	for _, name := range programConfig.Devices {
		b.AttachDevice(fixture.NewMount(name))
	}

	if err := housekeeping.Start(housekeeping.Frequency{BlobSweep: programConfig.BlobSweep}, blobs); err != nil {
		log.Fatalf("housekeeping: %s", err.Error())
	}

	resources := &server.ResourceTable{}
	srv := server.New(server.Config{Addr: programConfig.Addr, Resources: resources}, b, blobs)

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server: %s", err.Error())
	}

	// The listener is bound by now, so privileges can be dropped
	// exactly like the teacher's own HTTP server startup sequence.
	if err := runtimeEnv.DropPrivileges(programConfig.User, programConfig.Group); err != nil {
		log.Fatalf("error while changing user: %s", err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("server: shutdown did not complete cleanly: %s", err.Error())
		}
		housekeeping.Shutdown()
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	wg.Wait()
	log.Print("Graceful shutdown completed!")
}

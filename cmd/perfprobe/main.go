// File: cmd/perfprobe/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// perfprobe exercises the native substrate on the host it runs on: it
// creates a runtime from a YAML configuration, runs one pass over the ring,
// the ticket cache, the crypto accelerator and the event loop, prints the
// resulting statistics and optionally keeps the debug endpoint up.

package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/control"
	"github.com/momentics/perfnet/facade"
	"github.com/momentics/perfnet/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults when empty)")
	debugAddr := flag.String("debug", "", "debug HTTP listen address, overrides debug.addr")
	logLevel := flag.String("log", "", "log level, overrides log.level")
	serve := flag.Bool("serve", false, "keep running until interrupted")
	flag.Parse()

	cfg := control.DefaultConfig()
	if *configPath != "" {
		loaded, err := control.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *debugAddr != "" {
		cfg.Debug.Addr = *debugAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.NewProduction(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	logging.SetLogger(logger)
	log := logging.Named("perfprobe")

	rt, err := facade.New(cfg, nil)
	if err != nil {
		log.Fatal("runtime", zap.Error(err))
	}
	defer rt.Shutdown()

	failures := probe(rt, log)

	raw, err := rt.StatsJSON()
	if err != nil {
		log.Error("stats", zap.Error(err))
	} else {
		fmt.Println(string(raw))
	}

	if *serve {
		log.Info("serving", zap.String("debug_addr", rt.DebugAddr()))
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
	}
	if failures > 0 {
		rt.Shutdown()
		os.Exit(1)
	}
}

// probe runs one pass over every component and returns the failure count.
func probe(rt *facade.Runtime, log *zap.Logger) int {
	failures := 0
	check := func(name string, err error) {
		if err != nil {
			failures++
			log.Error("probe failed", zap.String("probe", name), zap.Error(err))
			return
		}
		log.Info("probe ok", zap.String("probe", name))
	}

	check("pool", codeErr(rt.InitPool(0)))

	check("ring", func() error {
		h := rt.CreateRing(64 * 1024)
		if h == 0 {
			return fmt.Errorf("create ring: %w", api.ErrResourceExhausted)
		}
		defer rt.DestroyRing(h)
		payload := []byte("perfprobe ring payload")
		if n := rt.RingWrite(h, payload); n != len(payload) {
			return fmt.Errorf("ring write returned %d", n)
		}
		dst := make([]byte, len(payload))
		if n := rt.RingRead(h, dst); n != len(payload) || string(dst) != string(payload) {
			return fmt.Errorf("ring read returned %d", n)
		}
		return nil
	}())

	check("tickets", func() error {
		if err := codeErr(rt.StoreTicket("perfprobe.local", []byte{1, 2, 3})); err != nil {
			return err
		}
		if _, ok := rt.GetTicket("perfprobe.local"); !ok {
			return fmt.Errorf("stored ticket missing: %w", api.ErrNotFound)
		}
		rt.ClearTicketCache()
		return nil
	}())

	check("crypto", func() error {
		key, nonce := make([]byte, 32), make([]byte, 12)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		ct, err := rt.Encrypt([]byte("perfprobe"), key, nonce)
		if err != nil {
			return err
		}
		pt, err := rt.Decrypt(ct, key, nonce)
		if err != nil {
			return err
		}
		if string(pt) != "perfprobe" {
			return fmt.Errorf("decrypt mismatch: %w", api.ErrSecurity)
		}
		return nil
	}())

	check("loop", func() error {
		h := rt.CreateEpoll()
		if h == 0 {
			return fmt.Errorf("create loop: %w", api.ErrNotSupported)
		}
		defer rt.DestroyEpoll(h)
		_, rc := rt.EpollWait(h, 1, 10)
		return codeErr(rc)
	}())

	return failures
}

func codeErr(c api.ErrorCode) error {
	if c == api.CodeOK {
		return nil
	}
	return fmt.Errorf("native call returned %s (%d)", c, int32(c))
}

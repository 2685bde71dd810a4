package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/shadowcpy/hashtable/internal/client"
	"github.com/shadowcpy/hashtable/internal/logging"
	"github.com/shadowcpy/hashtable/internal/protocol"
)

func main() {
	var (
		seed       = flag.Int64("seed", 0, "optional deterministic seed")
		debugPrint = flag.Bool("debug-print", false, "send a DebugPrint request and exit, ignoring ol/il")
		verbose    = flag.Bool("v", false, "verbose output")
		logFile    = flag.String("log-file", "", "rotate logs into this file instead of stderr")
	)
	flag.Parse()

	logConfig := &logging.Config{Level: logging.LevelInfo}
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	if *logFile != "" {
		rotating, err := logging.RotatingFile(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open -log-file %q: %v\n", *logFile, err)
			os.Exit(1)
		}
		defer rotating.Close()
		logConfig.Output = rotating
	}
	logger := logging.NewLogger(logConfig)

	args := flag.Args()
	if !*debugPrint && len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: shmht-client [--seed N] [--debug-print] [--log-file PATH] <ol> <il>")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("received shutdown signal, leaving")
		cancel()
	}()

	driver, err := client.Attach(ctx, client.Options{Seed: *seed, Logger: logger})
	if err != nil {
		logger.Errorf("attach failed: %v", err)
		os.Exit(1)
	}
	defer driver.Close()

	if *debugPrint {
		if _, err := driver.DebugPrint(); err != nil {
			logger.Errorf("debug-print failed: %v", err)
			os.Exit(1)
		}
		driver.Close()
		os.Exit(0)
	}

	ol, err := strconv.Atoi(args[0])
	if err != nil || ol < 0 {
		fmt.Fprintf(os.Stderr, "invalid ol %q\n", args[0])
		os.Exit(1)
	}
	il, err := strconv.Atoi(args[1])
	if err != nil || il < 0 {
		fmt.Fprintf(os.Stderr, "invalid il %q\n", args[1])
		os.Exit(1)
	}

	logger.Infof("client %d: starting, ol=%d il=%d", driver.ClientID(), ol, il)

	for iter := 0; ol == 0 || iter < ol; iter++ {
		select {
		case <-ctx.Done():
			driver.Close()
			os.Exit(0)
		default:
		}

		keys := driver.GenerateKeys(il)
		values := make([]uint32, il)
		for i := range values {
			values[i] = uint32(i)
		}

		insertResults, err := driver.RunPhase(client.PhaseInsert, keys, values)
		if err != nil {
			logger.Errorf("insert phase failed: %v", err)
			os.Exit(2)
		}
		for _, r := range insertResults {
			if r.Response.Status != protocol.StatusOk {
				logger.Errorf("insert of key %q failed: status=%s", r.Key.String(), r.Response.Status)
				os.Exit(2)
			}
		}

		readResults, err := driver.RunPhase(client.PhaseRead, keys, nil)
		if err != nil {
			logger.Errorf("read phase failed: %v", err)
			os.Exit(2)
		}
		for _, r := range readResults {
			if r.Response.Status != protocol.StatusOk {
				logger.Errorf("read of key %q failed: status=%s", r.Key.String(), r.Response.Status)
				os.Exit(2)
			}
			// Responses arrive in whatever order workers finish them, not
			// insertion order, so the expected value must be keyed off the
			// echoed request_id rather than this loop's position.
			expected := values[r.RequestID]
			found := false
			for e := uint32(0); e < r.Response.EntryCount; e++ {
				entry := r.Response.Entries[e]
				if entry.Key.Equal(r.Key) && entry.Value == expected {
					found = true
					break
				}
			}
			if !found {
				logger.Errorf("read verification mismatch: key %q expected value %d not found in bucket dump", r.Key.String(), expected)
				os.Exit(2)
			}
		}

		deleteResults, err := driver.RunPhase(client.PhaseDelete, keys, nil)
		if err != nil {
			logger.Errorf("delete phase failed: %v", err)
			os.Exit(2)
		}
		for _, r := range deleteResults {
			if r.Response.Status != protocol.StatusOk {
				logger.Errorf("delete of key %q failed: status=%s", r.Key.String(), r.Response.Status)
				os.Exit(2)
			}
		}

		logger.Infof("client %d: iteration %d verified (%d keys)", driver.ClientID(), iter, il)
	}

	fmt.Println("verification passed")
	driver.Close()
	os.Exit(0)
}

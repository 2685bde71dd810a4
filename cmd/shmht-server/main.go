package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	hashtable "github.com/shadowcpy/hashtable"
	"github.com/shadowcpy/hashtable/internal/logging"
)

func main() {
	var (
		buckets  = flag.Int("s", 0, "number of hash table buckets S (required)")
		workers  = flag.Int("n", 0, "number of worker threads W (required)")
		verbose  = flag.Bool("v", false, "verbose output")
		logFile  = flag.String("log-file", "", "rotate logs into this file instead of stderr")
		watchdog = flag.Duration("watchdog", 0, "poll interval for a stall watchdog that warns when the response queue stays full (0 disables it)")
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
	logging.SetDefault(logger)

	if *buckets <= 0 || *workers <= 0 {
		logger.Errorf("both -s and -n are required and must be > 0")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := hashtable.Params{Buckets: *buckets, Workers: *workers}
	falseVal := false
	server, err := hashtable.Serve(ctx, params, &hashtable.Options{
		Logger: logger,
		// This binary installs its own signal handler below so it can
		// print a message before shutting down; Serve's built-in handler
		// is disabled here.
		HandleSignals:    &falseVal,
		WatchdogInterval: *watchdog,
	})
	if err != nil {
		logger.Errorf("failed to start server: %v", err)
		if hashtable.IsCode(err, hashtable.ErrCodeBrokenPrimitive) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	fmt.Printf("hash table server listening: buckets=%d workers=%d\n", server.Buckets(), server.Workers())
	fmt.Printf("shared memory: %s %s\n", hashtable.RequestQueueName, hashtable.ResponseQueueName)
	fmt.Println("press Ctrl+C to stop...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("received shutdown signal")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := hashtable.StopAndDelete(stopCtx, server); err != nil {
		logger.Errorf("error stopping server: %v", err)
		os.Exit(2)
	}
	logger.Infof("server stopped cleanly")
	os.Exit(0)
}

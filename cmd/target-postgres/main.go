// Command target-postgres reads Singer messages on stdin and bulk-loads the
// records into the configured relational sink. The only structured output on
// stdout is the emitted checkpoint; everything else goes to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/metrics"
	"github.com/siilats/target-postgres/internal/metrics/prompush"
	"github.com/siilats/target-postgres/internal/target"

	// register all sink backends with the sink factory.
	_ "github.com/siilats/target-postgres/internal/sink/all"
)

func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "target config JSON path")
	flag.StringVar(&cfgPath, "c", "", "target config JSON path (shorthand)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.Parse()

	if cfgPath == "" {
		fatalf("a config file is required: target-postgres -c config.json")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf("configuration is invalid: %v", cfgPath)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag, then env, then none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "pushgateway" {
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(cfg.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
		}
	}

	t := target.New(cfg, os.Stdout)
	if err := t.Run(context.Background(), os.Stdin); err != nil {
		if mErr := metrics.Flush(); mErr != nil {
			log.Printf("metrics: flush failed: %v", mErr)
		}
		fatalf("%v", err)
	}

	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush failed: %v", err)
	}
	log.Printf("exiting normally")
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}

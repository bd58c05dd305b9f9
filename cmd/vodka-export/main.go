// Command vodka-export writes the provider's live channels as an M3U playlist
// and its programme guide as XMLTV for the Kodi addon, on demand or on a schedule.
//
//	export-epg       Export the XMLTV guide once
//	export-channels  Export the M3U channel list once
//	service          Refresh the guide in the background; optional status server
//	probe            Check that the provider gateways are reachable
//	healthcheck      Check a running service's status endpoints
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snapetech/vodka-export/internal/config"
	"github.com/snapetech/vodka-export/internal/export"
	"github.com/snapetech/vodka-export/internal/health"
	"github.com/snapetech/vodka-export/internal/logging"
	"github.com/snapetech/vodka-export/internal/provider"
)

func main() {
	_ = config.LoadEnvFile(".env")

	epgCmd := flag.NewFlagSet("export-epg", flag.ExitOnError)
	epgDir := epgCmd.String("dir", "", "Export directory (default: VODKA_EXPORT_DIR)")
	epgFrom := epgCmd.Int("from", -1, "Days back (default: VODKA_EPG_FROM_DAYS)")
	epgTo := epgCmd.Int("to", -1, "Days ahead (default: VODKA_EPG_TO_DAYS)")
	epgChunk := epgCmd.Int("chunk", 0, "Channels per EPG request (default: VODKA_EPG_CHUNK_SIZE)")

	chCmd := flag.NewFlagSet("export-channels", flag.ExitOnError)
	chDir := chCmd.String("dir", "", "Export directory (default: VODKA_EXPORT_DIR)")

	serviceCmd := flag.NewFlagSet("service", flag.ExitOnError)
	serviceAddr := serviceCmd.String("status-addr", "", "Status server listen address (default: VODKA_STATUS_ADDR; empty disables)")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)
	probeURLs := probeCmd.String("urls", "", "Comma-separated URLs to probe (default: both configured gateways)")
	probeTimeout := probeCmd.Duration("timeout", 30*time.Second, "Overall probe timeout")

	hcCmd := flag.NewFlagSet("healthcheck", flag.ExitOnError)
	hcURL := hcCmd.String("url", "http://127.0.0.1:8089", "Base URL of a running service's status server")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <export-epg|export-channels|service|probe|healthcheck> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  export-epg       Export the XMLTV guide once\n")
		fmt.Fprintf(os.Stderr, "  export-channels  Export the M3U channel list once\n")
		fmt.Fprintf(os.Stderr, "  service          Refresh the guide on a schedule (VODKA_AUTO_UPDATE=1)\n")
		fmt.Fprintf(os.Stderr, "  probe            Check provider gateway reachability\n")
		fmt.Fprintf(os.Stderr, "  healthcheck      Check a running service (exit 1 when unhealthy)\n")
		os.Exit(1)
	}

	cfg := config.Load()
	logCloser, err := logging.Setup(logging.Options{
		Prefix:     "[vodka-export] ",
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		log.Printf("Log file disabled: %v", err)
	}
	defer logCloser.Close()

	switch os.Args[1] {
	case "export-epg":
		_ = epgCmd.Parse(os.Args[2:])
		if *epgDir != "" {
			cfg.ExportDir = *epgDir
		}
		if *epgFrom >= 0 && *epgTo >= 0 {
			cfg.EPGFromDays, cfg.EPGToDays, cfg.EPGWindowSet = *epgFrom, *epgTo, true
		}
		if *epgChunk > 0 {
			cfg.EPGChunkSize = *epgChunk
		}
		os.Exit(runForeground(cfg, export.KindEPG))

	case "export-channels":
		_ = chCmd.Parse(os.Args[2:])
		if *chDir != "" {
			cfg.ExportDir = *chDir
		}
		os.Exit(runForeground(cfg, export.KindChannels))

	case "service":
		_ = serviceCmd.Parse(os.Args[2:])
		if *serviceAddr != "" {
			cfg.StatusAddr = *serviceAddr
		}
		a, err := newApp(cfg, nil)
		if err != nil {
			log.Printf("Config: %v", err)
			os.Exit(1)
		}
		defer a.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := a.runService(ctx); err != nil {
			if errors.Is(err, errServiceDisabled) {
				// Not an error for a host that simply has auto update off.
				return
			}
			log.Printf("Service failed: %v", err)
			os.Exit(1)
		}

	case "probe":
		_ = probeCmd.Parse(os.Args[2:])
		var urls []string
		for _, p := range strings.Split(*probeURLs, ",") {
			if p = strings.TrimSpace(p); p != "" {
				urls = append(urls, p)
			}
		}
		if len(urls) == 0 {
			if err := cfg.ValidateGateways(); err != nil {
				log.Printf("Config: %v", err)
				os.Exit(1)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), *probeTimeout)
		defer cancel()
		results := probe(ctx, cfg, urls)
		ok := 0
		for _, r := range results {
			switch r.Status {
			case provider.StatusOK:
				ok++
				log.Printf("  %-10s OK          %s (HTTP %d, %d ms)", r.Name, r.URL, r.StatusCode, r.LatencyMs)
			case provider.StatusCloudflare:
				log.Printf("  %-10s CLOUDFLARE  %s", r.Name, r.URL)
			default:
				log.Printf("  %-10s FAIL (%s)  %s HTTP %d", r.Name, r.Status, r.URL, r.StatusCode)
			}
		}
		if ok < len(results) {
			os.Exit(1)
		}

	case "healthcheck":
		_ = hcCmd.Parse(os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := health.CheckEndpoints(ctx, strings.TrimRight(*hcURL, "/")); err != nil {
			log.Printf("Unhealthy: %v", err)
			os.Exit(1)
		}
		log.Print("Healthy")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

// runForeground runs one export of kind, logs the user notice and returns the exit code.
func runForeground(cfg *config.Config, kind string) int {
	a, err := newApp(cfg, nil)
	if err != nil {
		log.Printf("Config: %v", err)
		return 1
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res export.Result
	if kind == export.KindEPG {
		res, err = a.foregroundEPG(ctx)
	} else {
		res, err = a.exporter.ExportChannels(ctx)
	}
	log.Print(export.Notice(kind, err))
	if err != nil {
		log.Printf("Export %s failed: %v", kind, err)
		return 1
	}
	log.Printf("Export %s: %d channels, %d programmes, %d bytes -> %s in %s",
		kind, res.Channels, res.Programmes, res.Bytes, res.Path, res.Duration.Round(time.Millisecond))
	return 0
}

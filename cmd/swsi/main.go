package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/always-cache/swsi"
	"github.com/always-cache/swsi/cache"
	"github.com/always-cache/swsi/pkg/preferences"
	"github.com/always-cache/swsi/precache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	hostFlag           string
	dbFilenameFlag     string
	manifestFlag       string
	localesFlag        string
	fallbackFlag       string
	stripQueryFlag     bool
	sweepIntervalFlag  time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (default 8080)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name, 'memory' for in-memory db (default cache.db)")
	flag.StringVar(&manifestFlag, "manifest", "", "Precache manifest file")
	flag.StringVar(&localesFlag, "locales", "", "Comma-separated locale codes (overrides config)")
	flag.StringVar(&fallbackFlag, "fallback", "", "Precached fallback page (default /404/)")
	flag.BoolVar(&stripQueryFlag, "strip-query", false, "Strip query parameters from subresource cache keys")
	flag.DurationVar(&sweepIntervalFlag, "sweep", 0, "Interval for purging expired entries (default 1h)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var config Config
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}
	applyFlags(&config)

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originUrl, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse url")
	}

	// set up sqlite memory provider
	dbFilename := config.DB
	if dbFilename == "memory" {
		dbFilename = "file::memory:?cache=shared"
	}
	cacheProvider, err := cache.NewSQLiteCache(dbFilename)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open cache db")
	}
	defer cacheProvider.Close()
	// preferences live in the cache db, on its connection
	prefStore, err := preferences.NewSQLiteStoreWithDB(cacheProvider.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open preference db")
	}
	defer prefStore.Close()

	var manifest precache.Manifest
	if config.Manifest != "" {
		if manifest, err = precache.LoadManifest(config.Manifest); err != nil {
			log.Fatal().Err(err).Msg("Could not read precache manifest")
		}
	}

	engine, err := swsi.CreateEngine(swsi.Config{
		Cache:                 cacheProvider,
		Preferences:           prefStore,
		OriginURL:             *originUrl,
		OriginHost:            config.Host,
		Logger:                &log.Logger,
		Manifest:              manifest,
		Locales:               config.Locales,
		FallbackPath:          config.Fallback,
		StripSubresourceQuery: config.StripSubresourceQuery,
		CookieHashKey:         []byte(config.CookieHashKey),
		SecureCookie:          config.SecureCookie,
		Partitions:            config.Partitions,
		SweepInterval:         config.SweepInterval,
		ResponseModifier:      config.Rules.Apply,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create engine")
	}
	defer engine.Close()

	if installed, removed, err := engine.Install(context.Background()); err != nil {
		// pages are still served from the network, the fallback page may be missing
		log.Error().Err(err).Msg("Could not install precache")
	} else {
		log.Info().Int("installed", installed).Int("removed", removed).Msg("Precache installed")
	}

	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", config.Port, originUrl.String(), config.Host)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), engine.Handler())

	if err != nil {
		panic(err)
	}
}

// applyFlags overrides the config with the flags that were set.
func applyFlags(config *Config) {
	if originFlag != "" {
		config.Origin = originFlag
	}
	if hostFlag != "" {
		config.Host = hostFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if dbFilenameFlag != "" {
		config.DB = dbFilenameFlag
	}
	if manifestFlag != "" {
		config.Manifest = manifestFlag
	}
	if localesFlag != "" {
		config.Locales = strings.Split(localesFlag, ",")
	}
	if fallbackFlag != "" {
		config.Fallback = fallbackFlag
	}
	if stripQueryFlag {
		config.StripSubresourceQuery = true
	}
	if sweepIntervalFlag != 0 {
		config.SweepInterval = sweepIntervalFlag
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.DB == "" {
		config.DB = "cache.db"
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = time.Hour
	}
}

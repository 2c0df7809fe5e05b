// Que Core - Actron Que air conditioner bridge
//
// This is the main entry point. Que Core polls the Actron Que cloud for
// each air conditioner on an account, keeps a typed attribute tree per
// system, and exposes it over MQTT, a REST/WebSocket API, InfluxDB and a
// local SQLite history.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/que-core/internal/api"
	"github.com/nerrad567/que-core/internal/auth"
	"github.com/nerrad567/que-core/internal/history"
	"github.com/nerrad567/que-core/internal/infrastructure/config"
	"github.com/nerrad567/que-core/internal/infrastructure/database"
	"github.com/nerrad567/que-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/que-core/internal/infrastructure/logging"
	"github.com/nerrad567/que-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/que"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
	"github.com/nerrad567/que-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// generateKey is the --hash-key value used when the flag has no argument.
	generateKey = "\x00generate"

	historyBuffer = 1024
)

type options struct {
	configPath string
	once       bool
	hashKey    string
	version    bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.version:
		fmt.Printf("quecore %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.hashKey != "":
		if err := printKeyHash(os.Stdout, opts.hashKey); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on interrupt signals for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("quecore", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.once, "once", false, "poll every system once, print the attributes as JSON and exit")
	fs.StringVar(&opts.hashKey, "hash-key", "", "print the Argon2id hash of an API key; without a value a new key is generated")
	fs.Lookup("hash-key").NoOptDefVal = generateKey
	fs.BoolVarP(&opts.version, "version", "v", false, "print version information and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// getConfigPath returns QUECORE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("QUECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// printKeyHash writes the hash for key, generating the key first when asked.
func printKeyHash(w io.Writer, key string) error {
	if key == generateKey {
		generated, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		key = generated
		fmt.Fprintf(w, "key:  %s\n", key)
	}
	hash, err := auth.HashKey(key)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}
	fmt.Fprintf(w, "hash: %s\n", hash)
	return nil
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting Que Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "level", cfg.Logging.Level)

	source, sender, err := newSource(cfg.Que, log)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	p := poller.New(source, sender, poller.Options{
		Interval:   cfg.GetPollInterval(),
		Serials:    cfg.Poll.Serials,
		Mode:       system.Mode(cfg.Poll.Mode),
		MaxZones:   cfg.Poll.MaxZones,
		Catalog:    catalog,
		EvictStale: cfg.Poll.EvictStale,
		Logger:     log.Component("poller"),
	})

	if opts.once {
		return pollOnce(ctx, p, os.Stdout)
	}

	var (
		repo       *history.Repository
		commandLog poller.CommandLog
	)
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		applied, err := db.Migrate(ctx, migrations.FS, migrations.Dir)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path(), "migrations_applied", len(applied))

		repo = history.NewRepository(db.DB)
		commandLog = repo

		recorder := history.NewRecorder(repo, historyBuffer, log.Component("history"))
		recorder.SetRetention(time.Duration(cfg.Database.HistoryRetention) * 24 * time.Hour)
		p.AddListener(recorder)
		go recorder.Run(ctx)
	} else {
		log.Info("history disabled")
	}

	if cfg.MQTT.Enabled {
		client, err := startMQTT(ctx, cfg, p, commandLog, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		p.AddListener(influx)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.API.Enabled {
		srv, err := startAPI(ctx, cfg, p, repo, commandLog, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, polling", "interval", cfg.GetPollInterval())
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	log.Info("Que Core stopped")
	return nil
}

// newSource returns the replay file source when configured, otherwise the
// cloud client. The returned sender delivers commands for the same source.
func newSource(cfg config.QueConfig, log *logging.Logger) (que.Source, system.CommandSender, error) {
	if cfg.ReplayFile != "" {
		replay := que.NewReplaySource(cfg.ReplayFile, cfg.ReplaySerial)
		log.Warn("replaying status from file, commands are not sent", "path", cfg.ReplayFile)
		return replay, replay, nil
	}

	client, err := que.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating Que client: %w", err)
	}
	client.SetLogger(log.Component("que"))
	return client, client, nil
}

func loadCatalog(cfg *config.Config) (*schema.Catalog, error) {
	if cfg.Schema.CatalogFile == "" {
		return schema.Default(cfg.Poll.MaxZones), nil
	}
	catalog, err := schema.LoadFile(cfg.Schema.CatalogFile, cfg.Poll.MaxZones)
	if err != nil {
		return nil, fmt.Errorf("loading schema catalog: %w", err)
	}
	return catalog, nil
}

// pollOnce syncs and refreshes every system once and writes
// {serial: {path: value}} to w.
func pollOnce(ctx context.Context, p *poller.Poller, w io.Writer) error {
	if _, err := p.Sync(ctx); err != nil {
		return err
	}
	refreshErr := p.RefreshAll(ctx)

	out := make(map[string]map[string]any)
	for _, sys := range p.Systems() {
		attrs := make(map[string]any)
		for _, a := range sys.Registry().List("") {
			attrs[a.Path()] = a.Value()
		}
		out[sys.Serial()] = attrs
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("writing attributes: %w", err)
	}
	return refreshErr
}

func startMQTT(ctx context.Context, cfg *config.Config, p *poller.Poller, commandLog poller.CommandLog, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	bridge := mqtt.NewBridge(client, mqttLog)
	p.AddListener(bridge)

	var exec poller.Executor = p
	if commandLog != nil {
		exec = poller.WithCommandLog(p, commandLog, "mqtt", mqttLog)
	}
	if err := bridge.ServeCommands(ctx, exec); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to MQTT commands: %w", err)
	}

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", client.Topics().Prefix,
	)
	return client, nil
}

func startAPI(ctx context.Context, cfg *config.Config, p *poller.Poller, repo *history.Repository, commandLog poller.CommandLog, log *logging.Logger) (*api.Server, error) {
	issuer, err := auth.NewIssuer(cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	var keys []config.APIKeyEntry
	if cfg.Security.APIKeys.Enabled {
		keys = cfg.Security.APIKeys.Keys
	}
	keyring, err := auth.NewKeyring(keys)
	if err != nil {
		return nil, fmt.Errorf("loading api keys: %w", err)
	}
	if keyring.Len() == 0 {
		log.Warn("no API keys configured, only /health is reachable")
	}

	apiLog := log.Component("api")
	var exec poller.Executor = p
	if commandLog != nil {
		exec = poller.WithCommandLog(p, commandLog, "api", apiLog)
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   apiLog,
		Systems:  p,
		Executor: exec,
		Keyring:  keyring,
		Issuer:   issuer,
		Version:  version,
	}
	// Assigning a nil *Repository would make a non-nil interface.
	if repo != nil {
		deps.History = repo
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	p.AddListener(srv.Hub())

	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

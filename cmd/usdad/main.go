package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	protocolconfig "usdacore/config"
	"usdacore/core"
	"usdacore/core/genesis"
	"usdacore/crypto"
	"usdacore/gateway/config"
	"usdacore/gateway/middleware"
	"usdacore/gateway/routes"
	"usdacore/native/crosschain"
	"usdacore/native/oracle"
	"usdacore/native/treasury"
	"usdacore/observability/logging"
	telemetry "usdacore/observability/otel"
	"usdacore/storage"
	"usdacore/storage/eventlog"
)

func main() {
	var cfgPath string
	var servicePath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to the protocol TOML configuration (overrides nodeConfig)")
	flag.StringVar(&servicePath, "service", "", "path to the daemon YAML configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	_ = godotenv.Load()

	svc, err := config.Load(servicePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load service config: %v\n", err)
		os.Exit(1)
	}
	env := strings.TrimSpace(os.Getenv("USDA_ENV"))
	logger := logging.Setup(svc.Observability.ServiceName, env, logging.Options{
		Level:      svc.Logging.Level,
		File:       svc.Logging.File,
		MaxSizeMB:  svc.Logging.MaxSizeMB,
		MaxBackups: svc.Logging.MaxBackups,
		MaxAgeDays: svc.Logging.MaxAgeDays,
	})
	if err := run(svc, cfgPath, servicePath, env, allowInsecureFlag, logger); err != nil {
		logger.Error("usdad exited", "error", err)
		os.Exit(1)
	}
}

func run(svc config.Config, cfgPath, servicePath, env string, allowInsecureFlag bool, logger *slog.Logger) error {
	if err := svc.RequireSecret(); err != nil {
		return err
	}

	configDir := ""
	if strings.TrimSpace(servicePath) != "" {
		configDir = filepath.Dir(servicePath)
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = resolvePath(configDir, svc.NodeConfig)
	}
	cfg, err := protocolconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load protocol config: %w", err)
	}

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:  svc.Observability.ServiceName,
		InstanceID:   os.Getenv("USDA_INSTANCE_ID"),
		Environment:  env,
		ChainID:      cfg.ChainID,
		PeerChainID:  cfg.PeerChainID,
		YieldRouting: cfg.Yield.Enabled,
		Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:     insecure,
		Headers:      telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:      svc.Observability.Metrics,
		Traces:       svc.Observability.Tracing,
		SampleRatio:  svc.Observability.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	passphrase := os.Getenv(cfg.SignerPassphraseEnv)
	if passphrase == "" {
		logger.Warn("signer passphrase env empty", "env", cfg.SignerPassphraseEnv)
	}
	signer, err := crypto.LoadOrCreateSigner(cfg.SignerKeystorePath, passphrase)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	prices := oracle.NewManual()
	feeds := oracle.NewAggregator(time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second)
	feeds.Register("manual", prices)

	engineCfg := core.EngineConfig{
		Custody:    cfg.CustodyRaw(),
		Oracle:     feeds,
		ChainID:    cfg.ChainID,
		PeerChain:  cfg.PeerChainID,
		PeerSigner: cfg.PeerSignerRaw(),
		Signer:     signer,
	}
	if cfg.Yield.Enabled {
		engineCfg.Adapter = treasury.NewMemoryAdapter(cfg.Yield.YieldBps)
	}
	if peer := strings.TrimSpace(cfg.Messaging.PeerURL); peer != "" {
		messenger, err := newMessenger(env, cfg)
		if err != nil {
			return err
		}
		engineCfg.Messenger = messenger
		logger.Info("cross-chain messenger configured",
			"peer", peer,
			"peerChain", cfg.PeerChainID,
			logging.MaskField("peerToken", os.Getenv("USDA_PEER_TOKEN")))
	}

	node, err := core.NewNode(db, engineCfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	node.SetLogger(logger)
	if err := initGenesis(node, cfg, logger); err != nil {
		return err
	}

	journal, err := eventlog.Open(cfg.Journal.DSN)
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	defer journal.Close()
	node.AddSink(journal)
	stream := core.NewStream()
	node.AddSink(stream)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if engineCfg.Messenger != nil {
		interval := time.Duration(cfg.Messaging.OutboxFlushSecs) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		go node.RunOutbox(ctx, interval)
	}

	handler, err := buildHandler(svc, node, journal, stream, prices, feeds, logger)
	if err != nil {
		return err
	}
	return serve(ctx, svc, configDir, env, allowInsecureFlag, handler, logger)
}

func newMessenger(env string, cfg *protocolconfig.Config) (*crosschain.HTTPMessenger, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.Messaging.PeerURL))
	if err != nil {
		return nil, fmt.Errorf("parse messaging.PeerURL: %w", err)
	}
	secured, err := config.EnforceSecureScheme(env, parsed)
	if err != nil {
		return nil, fmt.Errorf("messaging.PeerURL: %w", err)
	}
	fees, err := cfg.Messaging.Fees()
	if err != nil {
		return nil, err
	}
	return crosschain.NewHTTPMessenger(crosschain.HTTPConfig{
		PeerURL: secured.String(),
		Token:   os.Getenv("USDA_PEER_TOKEN"),
		Timeout: time.Duration(cfg.Messaging.TimeoutSeconds) * time.Second,
		Fee:     crosschain.FlatFee{Native: fees.Native, Token: fees.Token},
	})
}

func initGenesis(node *core.Node, cfg *protocolconfig.Config, logger *slog.Logger) error {
	if strings.TrimSpace(cfg.GenesisFile) == "" {
		if _, err := node.Totals(); err != nil {
			return fmt.Errorf("no GenesisFile configured and state is empty: %w", err)
		}
		return nil
	}
	spec, err := genesis.LoadGenesisSpec(cfg.GenesisFile)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if spec.ChainID != cfg.ChainID {
		return fmt.Errorf("genesis chain id %d does not match config chain id %d", spec.ChainID, cfg.ChainID)
	}
	applied, err := node.InitGenesis(spec)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", "chainId", spec.ChainID, "genesisTime", spec.GenesisTime)
	}
	return nil
}

func buildHandler(svc config.Config, node *core.Node, journal *eventlog.Journal, stream *core.Stream, prices *oracle.Manual, feeds oracle.Source, logger *slog.Logger) (http.Handler, error) {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: svc.Observability.LogRequests}, logger)
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    svc.Auth.Enabled,
		HMACSecret: svc.Auth.Secret(),
		Issuer:     svc.Auth.Issuer,
		Audience:   svc.Auth.Audience,
		ScopeClaim: svc.Auth.ScopeClaim,
		ClockSkew:  svc.Auth.ClockSkew,
	}, logger)
	if !svc.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from the X-USDA-Caller header")
	}

	rateLimits := make(map[string]middleware.RateLimit)
	for _, entry := range svc.RateLimits {
		rateLimits[entry.ID] = middleware.RateLimit{RequestsPerMinute: entry.RequestsPerMinute, Burst: entry.Burst}
	}
	if len(rateLimits) == 0 {
		rateLimits[routes.LimitQuery] = middleware.RateLimit{RequestsPerMinute: 600, Burst: 60}
		rateLimits[routes.LimitMutate] = middleware.RateLimit{RequestsPerMinute: 120, Burst: 20}
		rateLimits[routes.LimitCrossChain] = middleware.RateLimit{RequestsPerMinute: 240, Burst: 40}
	}

	router, err := routes.New(routes.Config{
		Node:          node,
		Journal:       journal,
		Stream:        stream,
		Prices:        prices,
		Oracle:        feeds,
		Authenticator: auth,
		RateLimiter:   middleware.NewRateLimiter(rateLimits, logger),
		Observability: obs,
		CORS:          middleware.CORSConfig{AllowedOrigins: svc.CORS.AllowedOrigins},
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure routes: %w", err)
	}
	if svc.Observability.Tracing {
		return otelhttp.NewHandler(router, "usdad"), nil
	}
	return router, nil
}

func serve(ctx context.Context, svc config.Config, configDir, env string, allowInsecureFlag bool, handler http.Handler, logger *slog.Logger) error {
	tlsConfig, err := buildTLSConfig(configDir, svc.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	allowInsecure := svc.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			return errors.New("TLS certificate and key are required; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(svc.ListenAddress) {
			return errors.New("plaintext mode is restricted to loopback listeners or dev environment")
		}
	}

	server := &http.Server{
		Addr:         svc.ListenAddress,
		Handler:      handler,
		ReadTimeout:  svc.ReadTimeout,
		WriteTimeout: svc.WriteTimeout,
		IdleTimeout:  svc.IdleTimeout,
		TLSConfig:    tlsConfig,
	}
	listener, err := net.Listen("tcp", svc.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("usdad listening", "address", scheme+"://"+listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func buildTLSConfig(baseDir string, sec config.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	caPath := resolvePath(baseDir, sec.TLSClientCAFile)
	if certPath == "" && keyPath == "" && caPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

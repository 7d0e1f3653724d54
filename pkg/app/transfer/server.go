// Package transfer implements app.Runner for the transfer server process.
package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainsafe/escrow-bridge/pkg/apikey"
	apphttp "github.com/chainsafe/escrow-bridge/pkg/app/http"
	"github.com/chainsafe/escrow-bridge/pkg/auth"
	"github.com/chainsafe/escrow-bridge/pkg/bridge"
	"github.com/chainsafe/escrow-bridge/pkg/bridge/across"
	"github.com/chainsafe/escrow-bridge/pkg/bridge/wormhole"
	"github.com/chainsafe/escrow-bridge/pkg/config"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/chainsafe/escrow-bridge/pkg/listener"
	"github.com/chainsafe/escrow-bridge/pkg/payout"
	"github.com/chainsafe/escrow-bridge/pkg/pgutil"
	"github.com/chainsafe/escrow-bridge/pkg/transfer/service"
	"github.com/chainsafe/escrow-bridge/pkg/transferstore"
	"github.com/chainsafe/escrow-bridge/pkg/vault"
)

const (
	defaultRequestTimeout  = 60 * time.Second
	defaultMonitorInterval = time.Minute
)

// Server holds cfg to init the transfer server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new transfer server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("transfer server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transfer server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	wallets, err := s.openVault()
	if err != nil {
		return err
	}

	assets, err := config.LoadAssets(cfg.AssetsFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded asset catalog", zap.Strings("symbols", assets.Symbols()))

	chains, closeChains, err := ethereum.Dial(cfg.Chains, logger)
	if err != nil {
		return fmt.Errorf("dial chains: %w", err)
	}
	defer closeChains()
	logger.Info("Connected to chains", zap.Strings("chains", chains.Names()))

	strategies, err := s.buildStrategies(logger)
	if err != nil {
		return err
	}

	svc := service.NewService(
		service.Deps{
			Store:      transferstore.NewStore(db),
			Chains:     chains,
			Assets:     assets,
			Wallets:    wallets,
			Strategies: strategies,
			Listener:   listener.New(listener.NewRegistry(), cfg.Listener.PollInterval, cfg.Listener.Timeout, logger),
			Payouts:    payout.NewExecutor(logger),
		},
		service.Options{
			FeeRateBps:      cfg.Fees.RateBps,
			OperatorAddress: common.HexToAddress(cfg.Fees.OperatorAddress),
		},
		logger,
	)

	if cfg.Recovery.Enabled {
		report, err := svc.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recover transfers: %w", err)
		}
		logger.Info("Recovered transfers",
			zap.Int("resumed", report.Resumed),
			zap.Int("interrupted", report.Interrupted),
			zap.Int("refunding", report.Refunding),
		)
	}

	if cfg.Monitoring.Enabled {
		interval := cfg.Recovery.MonitorInterval
		if interval <= 0 {
			interval = defaultMonitorInterval
		}
		go svc.Monitor(ctx, interval)
	}

	keys := apikey.NewService(apikey.NewStore(db), cfg.Auth.APIKeyTTL)

	router, err := s.setupRouter(service.NewLog(svc, logger), keys, logger)
	if err != nil {
		return err
	}

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// Resumed transfers observe ctx and stop waiting; let them settle before the db closes.
	svc.Wait()

	return err
}

func (s *Server) openVault() (*vault.Vault, error) {
	secret, err := config.Secret(s.cfg.Vault.EncryptionKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("vault encryption key: %w", err)
	}
	salt, err := config.Secret(s.cfg.Vault.SaltEnv)
	if err != nil {
		return nil, fmt.Errorf("vault salt: %w", err)
	}
	v, err := vault.New(secret, salt, s.cfg.Vault.Iterations)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	return v, nil
}

// buildStrategies registers Across for both network classes. Wormhole is
// registered only when the redeemer key env is set.
func (s *Server) buildStrategies(logger *zap.Logger) (*bridge.Set, error) {
	acrossCfg := s.cfg.Bridges.Across
	acrossOpts := across.Options{
		FillPollInterval: acrossCfg.FillPollInterval,
		FillTimeout:      acrossCfg.FillTimeout,
	}

	set := bridge.NewSet().
		Register(false, across.NewStrategy(across.NewClient(acrossCfg.APIURL, acrossCfg.Timeout), acrossOpts, logger)).
		Register(true, across.NewStrategy(across.NewClient(acrossCfg.TestnetAPIURL, acrossCfg.Timeout), acrossOpts, logger))

	whCfg := s.cfg.Bridges.Wormhole
	raw, err := config.Secret(whCfg.RedeemerKeyEnv)
	if err != nil {
		logger.Warn("Wormhole routes disabled", zap.Error(err))
		return set, nil
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid wormhole redeemer key: %w", err)
	}
	redeemer := ethereum.NewKeySigner(key)

	endpoints := make(map[int64]wormhole.Endpoint)
	for name, c := range s.cfg.Chains {
		if c.Wormhole.ChainID == 0 {
			continue
		}
		if !common.IsHexAddress(c.Wormhole.TokenBridge) || !common.IsHexAddress(c.Wormhole.CoreBridge) {
			return nil, fmt.Errorf("chain %s: wormhole token_bridge and core_bridge must be valid addresses", name)
		}
		endpoints[c.ChainID] = wormhole.Endpoint{
			WormholeChainID: c.Wormhole.ChainID,
			TokenBridge:     common.HexToAddress(c.Wormhole.TokenBridge),
			CoreBridge:      common.HexToAddress(c.Wormhole.CoreBridge),
		}
	}

	whOpts := wormhole.Options{
		PollInterval: whCfg.AttestationPollInterval,
		Timeout:      whCfg.AttestationTimeout,
	}
	set.Register(false, wormhole.NewStrategy(wormhole.NewClient(whCfg.APIURL), endpoints, redeemer, whOpts, logger)).
		Register(true, wormhole.NewStrategy(wormhole.NewClient(whCfg.TestnetAPIURL), endpoints, redeemer, whOpts, logger))

	logger.Info("Wormhole routes enabled",
		zap.String("redeemer", redeemer.Address().Hex()),
		zap.Int("endpoints", len(endpoints)),
	)
	return set, nil
}

func (s *Server) setupRouter(svc service.Service, keys *apikey.Service, logger *zap.Logger) (chi.Router, error) {
	requestTimeout := s.cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	// Transfer start blocks for the whole lifecycle, so these routes are bound
	// by the server write timeout rather than the request timeout.
	r.Group(func(r chi.Router) {
		if s.cfg.Auth.RequireAPIKey {
			r.Use(apikey.Middleware(keys, logger))
		}
		service.RegisterRoutes(r, svc, logger)
	})

	masterKey, err := config.Secret(s.cfg.Auth.MasterKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("api key master secret: %w", err)
	}
	jwtSecret, err := config.Secret(s.cfg.Auth.OperatorJWTSecretEnv)
	if err != nil {
		return nil, fmt.Errorf("operator jwt secret: %w", err)
	}
	operators, err := auth.NewOperatorValidator(jwtSecret, s.cfg.Auth.OperatorJWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("operator validator: %w", err)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		apikey.RegisterRoutes(r, keys, masterKey, logger)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(operators, logger))
			service.RegisterAdminRoutes(r, svc, logger)
		})
	})

	return r, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

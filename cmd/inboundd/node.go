package inboundd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	ipfslog "github.com/ipfs/go-log/v2"
	"github.com/mw-chain/polkadot-sdk/pkg/api"
	"github.com/mw-chain/polkadot-sdk/pkg/channel"
	"github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/config"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/forwarder"
	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
	"github.com/mw-chain/polkadot-sdk/pkg/readiness"
	"github.com/mw-chain/polkadot-sdk/pkg/verifier"
	"github.com/mw-chain/polkadot-sdk/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envStr          *string
	dataDir         *string
	logLevel        *string
	statusAddr      *string
	listenAddr      *string
	channelsFile    *string
	permissionsFile *string
	admins          *[]string

	existentialDeposit *string
	baseFee            *string
	byteFee            *string
	localReward        *string

	attesterKeys     *[]string
	attesterSetIndex *uint32
	headerCacheSize  *int

	natsURL       *string
	natsSubject   *string
	natsJetStream *bool
	natsToken     *string

	forwarderPollInterval *time.Duration
	forwarderBatchSize    *int
	shutdownTimeout       *time.Duration
)

func init() {
	envStr = NodeCmd.Flags().String("env", "", "environment (dev, test, prod)")
	dataDir = NodeCmd.Flags().String("dataDir", "", "Data directory")
	logLevel = NodeCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")
	statusAddr = NodeCmd.Flags().String("statusAddr", "[::]:6060", "Listen address for status server (disabled if blank)")
	listenAddr = NodeCmd.Flags().String("listenAddr", "[::]:6070", "Listen address for the submission API")
	channelsFile = NodeCmd.Flags().String("channelsFile", "", "Path to the channel registry (YAML)")
	permissionsFile = NodeCmd.Flags().String("permissionsFile", "", "Path to the API permissions file (YAML)")
	admins = NodeCmd.Flags().StringSlice("admins", []string{}, "Accounts allowed to run administrative operations")

	existentialDeposit = NodeCmd.Flags().String("existentialDeposit", "1000000000", "Minimum balance an account must keep")
	baseFee = NodeCmd.Flags().String("baseFee", "10000000000", "Delivery cost charged per message")
	byteFee = NodeCmd.Flags().String("byteFee", "10000000", "Delivery cost charged per byte of the submission")
	localReward = NodeCmd.Flags().String("localReward", "1000000000", "Reward paid to relayers on top of the delivery cost")

	attesterKeys = NodeCmd.Flags().StringSlice("attesterKeys", []string{}, "Addresses of the attester set, in signing order")
	attesterSetIndex = NodeCmd.Flags().Uint32("attesterSetIndex", 0, "Index of the attester set")
	headerCacheSize = NodeCmd.Flags().Int("headerCacheSize", verifier.DefaultHeaderCacheSize, "Number of verified execution headers to cache")

	natsURL = NodeCmd.Flags().String("natsURL", "", "NATS server accepted messages are forwarded to (messages are only logged if blank)")
	natsSubject = NodeCmd.Flags().String("natsSubject", forwarder.DefaultNATSConfig().SubjectPrefix, "Subject prefix for forwarded messages")
	natsJetStream = NodeCmd.Flags().Bool("natsJetStream", false, "Publish forwarded messages through JetStream")
	natsToken = NodeCmd.Flags().String("natsToken", "", "NATS authentication token (optional)")

	forwarderPollInterval = NodeCmd.Flags().Duration("forwarderPollInterval", forwarder.DefaultConfig().PollInterval, "How often the outbox is checked")
	forwarderBatchSize = NodeCmd.Flags().Int("forwarderBatchSize", forwarder.DefaultConfig().BatchSize, "Maximum number of outbox messages forwarded per batch")
	shutdownTimeout = NodeCmd.Flags().Duration("shutdownTimeout", 10*time.Second, "Time allowed for in-flight API requests on shutdown")
}

var NodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the inbound queue node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var configFile string
		if f := cmd.Flag("config"); f != nil {
			configFile = f.Value.String()
		}
		return config.InitFileConfig(cmd, config.ConfigOptions{FilePath: configFile, EnvPrefix: "INBOUNDD"})
	},
	Run: runNode,
}

func parseBalance(logger *zap.Logger, name, value string) *uint256.Int {
	v, err := uint256.FromDecimal(value)
	if err != nil {
		logger.Fatal("invalid amount", zap.String("flag", name), zap.String("value", value), zap.Error(err))
	}
	return v
}

func parseAttesterSet(logger *zap.Logger) *verifier.AttesterSet {
	if len(*attesterKeys) == 0 {
		logger.Fatal("Please specify --attesterKeys")
	}
	keys := make([]ethCommon.Address, 0, len(*attesterKeys))
	seen := map[ethCommon.Address]struct{}{}
	for _, k := range *attesterKeys {
		if !ethCommon.IsHexAddress(k) {
			logger.Fatal("invalid attester key", zap.String("key", k))
		}
		addr := ethCommon.HexToAddress(k)
		if _, exists := seen[addr]; exists {
			logger.Fatal("duplicate attester key", zap.String("key", k))
		}
		seen[addr] = struct{}{}
		keys = append(keys, addr)
	}
	return verifier.NewAttesterSet(keys, *attesterSetIndex)
}

func parseAdmins(logger *zap.Logger) inbound.AdminSet {
	accounts := make([]common.AccountID, 0, len(*admins))
	for _, a := range *admins {
		acct, err := common.StringToAccountID(a)
		if err != nil {
			logger.Fatal("invalid admin account", zap.String("account", a), zap.Error(err))
		}
		accounts = append(accounts, acct)
	}
	return inbound.NewAdminSet(accounts...)
}

func runNode(cmd *cobra.Command, args []string) {
	lvl, err := ipfslog.LevelFromString(*logLevel)
	if err != nil {
		fmt.Println("Invalid log level")
		os.Exit(1)
	}

	// Our root logger. Convert directly to a regular Zap logger.
	logger := ipfslog.Logger("inboundd").Desugar()

	// Override the default go-log config, which uses a magic environment variable.
	ipfslog.SetAllLoggers(lvl)

	env, err := common.ParseEnvironment(*envStr)
	if err != nil {
		logger.Fatal("Please specify --env", zap.Error(err))
	}

	// Refuse to run as root in production mode.
	if env == common.MainNet && os.Geteuid() == 0 {
		fmt.Println("can't run as uid 0")
		os.Exit(1)
	}

	logger.Info("starting inboundd", zap.String("version", version.Version()), zap.String("env", string(env)))

	// Verify flags
	if *dataDir == "" {
		logger.Fatal("Please specify --dataDir")
	}
	if *channelsFile == "" {
		logger.Fatal("Please specify --channelsFile")
	}
	if *permissionsFile == "" {
		logger.Fatal("Please specify --permissionsFile")
	}
	if *listenAddr == "" {
		logger.Fatal("Please specify --listenAddr")
	}

	pricing := inbound.PricingParameters{
		BaseFee:     parseBalance(logger, "baseFee", *baseFee),
		ByteFee:     parseBalance(logger, "byteFee", *byteFee),
		LocalReward: parseBalance(logger, "localReward", *localReward),
	}
	ed := parseBalance(logger, "existentialDeposit", *existentialDeposit)
	attesterSet := parseAttesterSet(logger)
	authority := parseAdmins(logger)

	// Register components for readiness checks.
	readiness.RegisterComponent(common.ReadinessDatabaseOpen)
	readiness.RegisterComponent(common.ReadinessChannelsLoaded)
	readiness.RegisterComponent(common.ReadinessForwarderRunning)

	var statusServer *http.Server
	if *statusAddr != "" {
		// Use a custom routing instead of using http.DefaultServeMux directly to avoid accidentally exposing packages
		// that register themselves with it by default (like pprof).
		router := mux.NewRouter()

		// Simple endpoint exposing node readiness (safe to expose to untrusted clients)
		router.HandleFunc("/readyz", readiness.Handler)

		// Prometheus metrics (safe to expose to untrusted clients)
		router.Handle("/metrics", promhttp.Handler())

		statusServer = &http.Server{
			Addr:              *statusAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server listening", zap.String("addr", *statusAddr))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server crashed", zap.Error(err))
			}
		}()
	}

	database := db.OpenDb(logger, *dataDir)
	defer database.Close()
	readiness.SetReady(common.ReadinessDatabaseOpen)

	registry, err := channel.LoadRegistryFile(*channelsFile)
	if err != nil {
		logger.Fatal("failed to load channels", zap.Error(err))
	}
	for _, c := range registry.All() {
		logger.Info("registered channel", zap.Stringer("channel", c))
	}
	readiness.SetReady(common.ReadinessChannelsLoaded)

	permissions, err := api.NewPermissions(*permissionsFile)
	if err != nil {
		logger.Fatal("failed to load permissions file", zap.String("permFile", *permissionsFile), zap.Error(err))
	}

	proofVerifier, err := verifier.NewVerifier(logger.With(zap.String("component", "verifier")), *headerCacheSize, attesterSet)
	if err != nil {
		logger.Fatal("failed to create verifier", zap.Error(err))
	}

	var router forwarder.Router = forwarder.LogRouter{Logger: logger}
	if *natsURL != "" {
		natsCfg := forwarder.DefaultNATSConfig()
		natsCfg.URL = *natsURL
		natsCfg.SubjectPrefix = *natsSubject
		natsCfg.JetStream = *natsJetStream
		natsCfg.Token = *natsToken
		natsRouter, err := forwarder.NewNATSRouter(logger.With(zap.String("component", "nats")), natsCfg)
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
		}
		defer natsRouter.Close()
		router = natsRouter
	}

	fwdCfg := forwarder.DefaultConfig()
	fwdCfg.PollInterval = *forwarderPollInterval
	fwdCfg.BatchSize = *forwarderBatchSize
	fwd := forwarder.NewForwarder(logger, database, router, fwdCfg)

	queue := inbound.NewQueue(logger, database, ledger.New(ed), registry, proofVerifier, authority, pricing, fwd)
	if err := queue.RefreshMetrics(); err != nil {
		logger.Fatal("failed to read operating mode", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errC := make(chan error)

	if err := permissions.StartWatcher(ctx, logger, errC); err != nil {
		logger.Fatal("failed to start permissions watcher", zap.Error(err))
	}

	common.RunWithScissors(ctx, errC, "forwarder", fwd.Run)

	apiServer := api.NewHTTPServer(*listenAddr, logger, env, permissions, queue)
	go func() {
		logger.Info("api server listening", zap.String("addr", *listenAddr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api server closed unexpectedly", zap.Error(err))
		}
	}()

	// Handle SIGTERM
	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigterm
		logger.Info("Received sigterm. exiting.")
		cancel()
	}()

	// Wait for either a shutdown or a fatal error.
	select {
	case <-ctx.Done():
		logger.Info("Context cancelled, exiting...")
	case err := <-errC:
		logger.Error("Encountered an error, exiting", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down api server", zap.Error(err))
	}
	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down status server", zap.Error(err))
		}
	}
}

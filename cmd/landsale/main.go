package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/landsale-go/pkg/client"
	"github.com/Layr-Labs/landsale-go/pkg/config"
	"github.com/Layr-Labs/landsale-go/pkg/logger"
	"github.com/Layr-Labs/landsale-go/pkg/merkle"
	"github.com/Layr-Labs/landsale-go/pkg/parcel"
	"github.com/Layr-Labs/landsale-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/landsale-go/pkg/persistence/badger"
	"github.com/Layr-Labs/landsale-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/landsale-go/pkg/persistence/redis"
	"github.com/Layr-Labs/landsale-go/pkg/sale"
	"github.com/Layr-Labs/landsale-go/pkg/server"
	"github.com/Layr-Labs/landsale-go/pkg/types"
)

var catalogueFlag = &cli.StringFlag{
	Name:     "catalogue",
	Aliases:  []string{"c"},
	Usage:    "Path to the JSON parcel catalogue",
	EnvVars:  []string{config.EnvLandsaleCatalogue},
	Required: true,
}

func main() {
	app := &cli.App{
		Name:  "landsale",
		Usage: "Merkle allowlisted land sale",
		Description: `Builds the Merkle commitment for a parcel catalogue and serves a time boxed sale against it.

Commands:
- root:   print the catalogue root
- proof:  print the inclusion proof for one parcel
- verify: check a proof against a root
- serve:  run the sale HTTP server
- purchase: submit a purchase to a running server`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:   "root",
				Usage:  "Build the tree and print its root",
				Flags:  []cli.Flag{catalogueFlag},
				Action: runRoot,
			},
			{
				Name:  "proof",
				Usage: "Print the inclusion proof for the parcel at --index",
				Flags: []cli.Flag{
					catalogueFlag,
					&cli.IntFlag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Catalogue index of the parcel",
						Required: true,
					},
				},
				Action: runProof,
			},
			{
				Name:  "verify",
				Usage: "Verify a proof file produced by the proof command",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "leaf", Usage: "Leaf digest (0x hex)", Required: true},
					&cli.StringFlag{Name: "root", Usage: "Root digest (0x hex)", Required: true},
					&cli.StringFlag{Name: "proof", Usage: "Path to the proof JSON", Required: true},
				},
				Action: runVerify,
			},
			{
				Name:   "serve",
				Usage:  "Run the sale HTTP server",
				Flags:  serveFlags(),
				Action: runServe,
			},
			{
				Name:  "purchase",
				Usage: "Buy the parcel at --index from a running sale server",
				Flags: []cli.Flag{
					catalogueFlag,
					&cli.StringFlag{Name: "server", Usage: "Sale server URL", Value: "http://localhost:8000"},
					&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "Catalogue index of the parcel", Required: true},
					&cli.StringFlag{Name: "buyer", Usage: "Buyer address", Required: true},
					&cli.StringFlag{Name: "recipient", Usage: "Recipient address, defaults to the buyer"},
					&cli.StringFlag{Name: "reserved", Usage: "Reserved address claimed by the buyer"},
					&cli.StringFlag{Name: "rail", Usage: "Payment rail", Value: string(types.RailETH)},
					&cli.BoolFlag{Name: "verbose", Usage: "Enable verbose logging"},
				},
				Action: runPurchase,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		catalogueFlag,
		&cli.Int64Flag{
			Name:     "sale-start",
			Usage:    "Unix time the sale opens",
			EnvVars:  []string{config.EnvLandsaleSaleStart},
			Required: true,
		},
		&cli.Int64Flag{
			Name:     "sale-end",
			Usage:    "Unix time the sale closes (exclusive)",
			EnvVars:  []string{config.EnvLandsaleSaleEnd},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "admin",
			Usage:    "Address allowed to toggle payment rails",
			EnvVars:  []string{config.EnvLandsaleAdmin},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "rails",
			Usage:   "Comma separated rails enabled on first start (eth, sand, dai)",
			Value:   "eth",
			EnvVars: []string{config.EnvLandsaleRails},
		},
		&cli.StringFlag{
			Name:    "persistence",
			Usage:   "Sold marker backend: memory, badger or redis",
			Value:   string(config.PersistenceMemory),
			EnvVars: []string{config.EnvLandsalePersistence},
		},
		&cli.StringFlag{
			Name:    "badger-path",
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvLandsaleBadgerPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis host:port",
			EnvVars: []string{config.EnvLandsaleRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvLandsaleRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvLandsaleRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-prefix",
			Usage:   "Prefix for every Redis key",
			EnvVars: []string{config.EnvLandsaleRedisPrefix},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   8000,
			Usage:   "HTTP server port",
			EnvVars: []string{config.EnvLandsalePort},
		},
		&cli.Float64Flag{
			Name:    "purchase-rate-limit",
			Usage:   "Purchase requests per second, 0 disables limiting",
			EnvVars: []string{config.EnvLandsaleRateLimit},
		},
		&cli.IntFlag{
			Name:    "purchase-rate-burst",
			Value:   10,
			Usage:   "Purchase burst size",
			EnvVars: []string{config.EnvLandsaleRateBurst},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvLandsaleVerbose},
		},
	}
}

func loadTree(path string) ([]*types.ParcelRecord, *merkle.MerkleTree, error) {
	records, err := parcel.LoadCatalogue(path)
	if err != nil {
		return nil, nil, err
	}
	if err := parcel.ValidateCatalogue(records); err != nil {
		return nil, nil, fmt.Errorf("invalid catalogue: %w", err)
	}
	tree, err := parcel.BuildCatalogueTree(records)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tree: %w", err)
	}
	return records, tree, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRoot(c *cli.Context) error {
	_, tree, err := loadTree(c.String("catalogue"))
	if err != nil {
		return err
	}
	return printJSON(types.RootResponse{Root: tree.Root, LeafCount: len(tree.Leaves)})
}

func runProof(c *cli.Context) error {
	_, tree, err := loadTree(c.String("catalogue"))
	if err != nil {
		return err
	}
	proof, err := tree.GenerateProofAtIndex(c.Int("index"))
	if err != nil {
		return err
	}
	return printJSON(types.ProofResponse{
		Root:      tree.Root,
		Leaf:      proof.Leaf,
		LeafIndex: proof.LeafIndex,
		Proof:     proof.Path,
	})
}

func parseDigest(name, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid %s: expected %d bytes, got %d", name, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func runVerify(c *cli.Context) error {
	leaf, err := parseDigest("leaf", c.String("leaf"))
	if err != nil {
		return err
	}
	root, err := parseDigest("root", c.String("root"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("proof"))
	if err != nil {
		return fmt.Errorf("failed to read proof: %w", err)
	}
	var proof types.ProofResponse
	if err := json.Unmarshal(data, &proof); err != nil {
		return fmt.Errorf("failed to parse proof: %w", err)
	}

	fmt.Println(merkle.VerifyProof(leaf, proof.Proof, root))
	return nil
}

func runServe(c *cli.Context) error {
	// Create logger
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	// Parse configuration from flags/environment
	saleConfig, err := parseSaleConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := saleConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	records, tree, err := loadTree(saleConfig.CataloguePath)
	if err != nil {
		return err
	}
	l.Sugar().Infow("Catalogue loaded", "parcels", len(records), "root", tree.Root.Hex(), "depth", tree.Depth())

	store, err := newPersistence(saleConfig, l)
	if err != nil {
		return fmt.Errorf("failed to create persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	s, err := sale.NewSale(&sale.Config{
		Root:         tree.Root,
		SaleStart:    saleConfig.SaleStart,
		SaleEnd:      saleConfig.SaleEnd,
		Admin:        saleConfig.Admin(),
		EnabledRails: saleConfig.EnabledRails,
	}, store, &sale.Collaborators{Results: &resultLogger{logger: l}}, l)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	srv := server.NewServer(s, tree, &server.Config{
		Port:              saleConfig.Port,
		PurchaseRateLimit: saleConfig.PurchaseRateLimit,
		PurchaseRateBurst: saleConfig.PurchaseRateBurst,
	}, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Land sale running",
		"port", saleConfig.Port,
		"persistence", saleConfig.Persistence,
		"sale_start", saleConfig.SaleStart,
		"sale_end", saleConfig.SaleEnd)
	l.Sugar().Infow("Available endpoints",
		"purchase", "POST /purchase",
		"proof", "POST /proof",
		"queries", "GET /root /expiry /rails /sold",
		"admin", "POST /admin/rails")
	l.Sugar().Info("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func parseAddress(name, s string, required bool) (common.Address, error) {
	if s == "" && !required {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, s)
	}
	return common.HexToAddress(s), nil
}

func runPurchase(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	records, err := parcel.LoadCatalogue(c.String("catalogue"))
	if err != nil {
		return err
	}
	index := c.Int("index")
	if index < 0 || index >= len(records) {
		return fmt.Errorf("index %d out of range [0, %d)", index, len(records))
	}
	rec := records[index]

	buyer, err := parseAddress("buyer", c.String("buyer"), true)
	if err != nil {
		return err
	}
	recipient, err := parseAddress("recipient", c.String("recipient"), false)
	if err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		recipient = buyer
	}
	reserved, err := parseAddress("reserved", c.String("reserved"), false)
	if err != nil {
		return err
	}

	sc, err := client.NewClient(&client.ClientConfig{BaseURL: c.String("server"), Logger: l})
	if err != nil {
		return err
	}

	proof, err := sc.GetProof(c.Context, rec)
	if err != nil {
		return fmt.Errorf("failed to fetch proof: %w", err)
	}

	result, err := sc.Purchase(c.Context, &types.PurchaseRequest{
		Buyer:       buyer,
		Recipient:   recipient,
		ReservedArg: reserved,
		Parcel:      *rec,
		Proof:       proof.Proof,
	}, types.PaymentRail(c.String("rail")))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func parseSaleConfig(c *cli.Context) (*config.SaleConfig, error) {
	rails, err := config.ParseRails(c.String("rails"))
	if err != nil {
		return nil, err
	}
	return &config.SaleConfig{
		CataloguePath: c.String("catalogue"),
		SaleStart:     c.Int64("sale-start"),
		SaleEnd:       c.Int64("sale-end"),
		AdminAddress:  c.String("admin"),
		EnabledRails:  rails,
		Persistence:   config.PersistenceBackend(c.String("persistence")),
		BadgerPath:    c.String("badger-path"),
		Redis: config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-prefix"),
		},
		Port:              c.Int("port"),
		PurchaseRateLimit: c.Float64("purchase-rate-limit"),
		PurchaseRateBurst: c.Int("purchase-rate-burst"),
		Verbose:           c.Bool("verbose"),
	}, nil
}

func newPersistence(cfg *config.SaleConfig, l *zap.Logger) (persistence.ISalePersistence, error) {
	switch cfg.Persistence {
	case config.PersistenceBadger:
		return badgerPersistence.NewBadgerPersistence(cfg.BadgerPath, l)
	case config.PersistenceRedis:
		return redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	case config.PersistenceMemory:
		return memory.NewMemoryPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend: %s", cfg.Persistence)
	}
}

// resultLogger records every authorized purchase in the log
type resultLogger struct {
	logger *zap.Logger
}

func (r *resultLogger) OnAuthorized(result *types.AuthorizationResult) {
	r.logger.Sugar().Infow("LandQuadPurchased",
		"purchase_id", result.PurchaseID,
		"buyer", result.Buyer.Hex(),
		"recipient", result.Recipient.Hex(),
		"top_corner_id", result.TopCornerID,
		"size", result.Parcel.Size,
		"price", result.Parcel.Price,
		"rail", result.Rail,
	)
}

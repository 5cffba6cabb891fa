package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"stagebridge/pkg/audit"
	"stagebridge/pkg/auth"
	"stagebridge/pkg/ledger"
	"stagebridge/services/bridge/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	chains := map[ledger.Target]ledger.Accessor{}
	if cfg.PrimaryRPCURL != "" {
		c, err := ledger.Dial(ctx, cfg.PrimaryRPCURL, cfg.PrimaryContract, cfg.PrivateKey)
		if err != nil {
			log.Fatalf("primary chain: %v", err)
		}
		chains[ledger.Primary] = c
	}
	if cfg.SecondaryRPCURL != "" {
		c, err := ledger.Dial(ctx, cfg.SecondaryRPCURL, cfg.SecondaryContract, cfg.PrivateKey)
		if err != nil {
			log.Fatalf("secondary chain: %v", err)
		}
		chains[ledger.Secondary] = c
	}
	if len(chains) == 0 {
		log.Fatal("no chain configured: set PRIMARY_RPC_URL and/or SECONDARY_RPC_URL")
	}
	for target, c := range chains {
		id, err := c.ChainID(ctx)
		if err != nil {
			log.Printf("%s: chain id check failed: %v", target, err)
			continue
		}
		log.Printf("%s chainId=%d wallet=%s contract=%s", target, id, c.WalletAddress(), c.ContractAddress())
	}

	var journal audit.Store
	if cfg.DatabaseURL != "" {
		pg, err := audit.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("audit store: %v", err)
		}
		journal = pg
	} else {
		jl, err := audit.NewJSONLStore(cfg.LogFile)
		if err != nil {
			log.Fatalf("audit store: %v", err)
		}
		journal = jl
	}

	srv := &server{
		gate: auth.New(auth.Config{
			APIKey:     cfg.APIKey,
			Secret:     cfg.AuthSecret,
			SessionTTL: cfg.SessionTTL,
			Allow:      cfg.AllowAddresses,
		}),
		journal:      journal,
		chains:       chains,
		defaultChain: cfg.DefaultChain,
		retries:      cfg.Retries,
		backoff:      cfg.Backoff,
		limiter:      newFixedWindowLimiter(cfg.RateLimitPerMin),
	}

	log.Printf("stage bridge listening on :%s (default chain %s)", cfg.Port, cfg.DefaultChain)
	if err := http.ListenAndServe(":"+cfg.Port, srv.router()); err != nil {
		log.Fatal(err)
	}
}

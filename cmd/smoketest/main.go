// Command smoketest runs the portal's lookups against a live environment
// using the same configuration as the server, without going through HTTP.
//
//	smoketest -identity 'jdoe_example.com#EXT#@tenant.onmicrosoft.com' -blob /attachments/d-1/plan.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"dispatch_portal/pkg/blobsas"
	"dispatch_portal/pkg/config"
	"dispatch_portal/pkg/dynamics"
	"dispatch_portal/pkg/identity"
)

func main() {
	raw := flag.String("identity", "", "email or raw user identity to look up")
	blob := flag.String("blob", "", "blob path to sign")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	if *raw == "" && *blob == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *raw != "" {
		lookup(ctx, cfg, *raw)
	}

	if *blob != "" {
		issuer := blobsas.NewIssuer(cfg.Storage.ConnectionString, cfg.Storage.SignedURLTTL, logger)
		res, err := issuer.Sign(cfg.Storage.AttachmentContainer, *blob)
		if err != nil {
			log.Fatalf("failed to sign %s: %v", *blob, err)
		}
		fmt.Printf("Signed URL (expires %s):\n%s\n", res.ExpiresAt.Format(time.RFC3339), res.URL)
	}
}

func lookup(ctx context.Context, cfg *config.Config, raw string) {
	email, err := identity.Normalize(raw)
	if err != nil {
		log.Fatalf("could not normalize %q: %v", raw, err)
	}
	fmt.Printf("Normalized %q to %s\n", raw, email)

	if err := cfg.Dataverse.Validate(); err != nil {
		log.Fatalf("dataverse configuration: %v", err)
	}
	cred, err := dynamics.NewCredential(cfg.Dataverse)
	if err != nil {
		log.Fatalf("dataverse credential: %v", err)
	}
	client := dynamics.NewD365Client(cfg.Dataverse, cred)

	start := time.Now()
	worker, err := client.FindWorker(ctx, email)
	if err != nil {
		log.Fatalf("failed to find worker: %v", err)
	}
	fmt.Printf("Found worker %s (%s) in business unit %s\n", worker.Name, worker.ID, worker.BusinessUnitID)

	dispatches, err := client.ListDispatches(ctx, worker.BusinessUnitID)
	if err != nil {
		log.Fatalf("failed to list dispatches: %v", err)
	}
	fmt.Printf("Fetched %d dispatches in %s\n", len(dispatches), time.Since(start))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, d := range dispatches {
		if err := enc.Encode(d); err != nil {
			log.Fatalf("failed to print dispatch %s: %v", d.ID, err)
		}
	}
}

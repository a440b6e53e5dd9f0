package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"mangrove-indexer/internal/domain"
	pgstore "mangrove-indexer/internal/storage/postgres"
	"mangrove-indexer/internal/verification"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	kinds := flag.String("kinds", "", "Comma-separated aggregate kinds to verify (default: all)")
	verbose := flag.Bool("verbose", false, "Print every verified aggregate")

	flag.Parse()

	logger := log.New(os.Stderr, "[verify] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	selected, err := parseKinds(*kinds)
	if err != nil {
		logger.Fatal(err)
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	report, err := verification.NewVerifier(pgstore.NewDB(pool)).VerifyAll(ctx, selected...)
	if err != nil {
		logger.Fatalf("Verify: %v", err)
	}

	for _, res := range report.Results {
		if *verbose || !res.Valid {
			status := "ok"
			if !res.Valid {
				status = "INVALID"
			}
			fmt.Printf("%-10s %-60s versions=%-5d %s\n", res.Kind, res.AggregateID, res.Versions, status)
		}
		for _, issue := range res.Issues {
			fmt.Printf("    %s: %s\n", issue.Type, issue.Detail)
		}
	}
	fmt.Printf("\n%d aggregates, %d versions, %d invalid\n", report.TotalAggregates, report.TotalVersions, report.InvalidAggregates)

	if !report.OK() {
		os.Exit(1)
	}
}

func parseKinds(s string) ([]domain.Kind, error) {
	if s == "" {
		return nil, nil
	}
	var kinds []domain.Kind
	for _, part := range strings.Split(s, ",") {
		k := domain.Kind(strings.TrimSpace(part))
		if !k.IsValid() {
			return nil, fmt.Errorf("unknown kind %q", k)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type seedPart struct {
	sku          string
	partType     string
	positionType string
	absType      string
	boltPattern  string
	driveType    string
	specs        string
}

type seedApplication struct {
	sku       string
	make_     string
	model     string
	startYear int
	endYear   int
}

type seedReference struct {
	sku             string
	competitorSku   string
	competitorBrand string
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	parts := []seedPart{
		{"ACR-HB-001", "Hub Bearing", "Front", "With ABS", "5x114.3", "FWD", "Bolt-on hub assembly, pre-pressed bearing"},
		{"ACR-HB-002", "Hub Bearing", "Rear", "With ABS", "5x114.3", "FWD", "Rear hub assembly with integrated speed sensor"},
		{"ACR-HB-003", "Hub Bearing", "Front", "Without ABS", "5x100", "FWD", ""},
		{"ACR-WB-101", "Wheel Bearing", "Front", "Without ABS", "", "RWD", "Tapered roller bearing, press fit"},
	}
	partIDs := make(map[string]uuid.UUID, len(parts))
	for _, p := range parts {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO parts (acr_sku, part_type, position_type, abs_type, bolt_pattern, drive_type, specifications, workflow_status, last_modified_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'ACTIVE', 'manual')
			ON CONFLICT (acr_sku) DO UPDATE SET part_type = EXCLUDED.part_type
			RETURNING id
		`, p.sku, p.partType, p.positionType, p.absType, p.boltPattern, p.driveType, p.specs).Scan(&id); err != nil {
			log.Fatalf("upsert part %s: %v", p.sku, err)
		}
		partIDs[p.sku] = id
	}

	applications := []seedApplication{
		{"ACR-HB-001", "Honda", "Accord", 2008, 2012},
		{"ACR-HB-001", "Honda", "Accord", 2013, 2017},
		{"ACR-HB-002", "Honda", "CR-V", 2012, 2016},
		{"ACR-HB-003", "Toyota", "Corolla", 2009, 2013},
		{"ACR-WB-101", "Ford", "Mustang", 2005, 2014},
	}
	for _, a := range applications {
		if _, err := tx.Exec(ctx, `
			INSERT INTO vehicle_applications (part_id, make, model, start_year, end_year, last_modified_by)
			VALUES ($1, $2, $3, $4, $5, 'manual')
			ON CONFLICT DO NOTHING
		`, partIDs[a.sku], a.make_, a.model, a.startYear, a.endYear); err != nil {
			log.Fatalf("insert vehicle application %s %s: %v", a.make_, a.model, err)
		}
	}

	references := []seedReference{
		{"ACR-HB-001", "513121", "Timken"},
		{"ACR-HB-001", "HA590045", "SKF"},
		{"ACR-HB-002", "512344", "Timken"},
		{"ACR-WB-101", "SET45", "National"},
	}
	for _, c := range references {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cross_references (part_id, competitor_sku, competitor_brand, last_modified_by)
			VALUES ($1, $2, $3, 'manual')
			ON CONFLICT DO NOTHING
		`, partIDs[c.sku], c.competitorSku, c.competitorBrand); err != nil {
			log.Fatalf("insert cross reference %s: %v", c.competitorSku, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	fmt.Printf("Seed completed. parts=%d applications=%d references=%d\n", len(parts), len(applications), len(references))
}

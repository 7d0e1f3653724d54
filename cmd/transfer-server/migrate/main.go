package main

import (
	"flag"
	"log"

	"github.com/chainsafe/escrow-bridge/pkg/config"
	"github.com/chainsafe/escrow-bridge/pkg/migrations/transferdb"
	"github.com/chainsafe/escrow-bridge/pkg/pgutil"
	mghelper "github.com/chainsafe/escrow-bridge/pkg/pgutil/migrations"

	"github.com/uptrace/bun/migrate"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for transfer database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, transferdb.Migrations)

	err = mghelper.RunMigrations(migrator, flag.Args()...)
	if err != nil {
		mghelper.Exitf("%s", err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"

	"github.com/gopds/gopds/pkg/catalog"
	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/covers"
	"github.com/gopds/gopds/pkg/database"
	"github.com/gopds/gopds/pkg/migrations"
	"github.com/gopds/gopds/pkg/scanner"
	"github.com/gopds/gopds/pkg/version"
	"github.com/gopds/gopds/pkg/worker"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:  "gopds",
		Usage: "library scanning and metadata reconciliation engine",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the scan worker until interrupted",
				Action: runDaemon,
			},
			{
				Name:   "scan",
				Usage:  "run a single scan and print the summary",
				Action: runScanOnce,
			},
			{
				Name:   "dedupe",
				Usage:  "merge duplicate authors and series",
				Action: runDedupe,
			},
			{
				Name:   "recount",
				Usage:  "rebuild the aggregate counters",
				Action: runRecount,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

// setup loads config, opens the database, applies migrations, and builds
// the scanner stack shared by every command.
func setup(ctx context.Context, log logger.Logger) (*config.Config, *bun.DB, *scanner.Scanner, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	repo := catalog.NewService(db)
	sc := scanner.New(cfg, repo, covers.NewStore(cfg))
	return cfg, db, sc, nil
}

func runDaemon(c *cli.Context) error {
	log := logger.New()
	log.Info("starting gopds", logger.Data{"version": version.Version})

	cfg, db, sc, err := setup(c.Context, log)
	if err != nil {
		return err
	}
	defer db.Close()

	wrkr := worker.New(cfg, sc)
	if err := wrkr.Start(); err != nil {
		return err
	}
	log.Info("worker started")

	// Reconcile once at boot; later scans come from the schedule.
	wrkr.TriggerScan()

	graceful := signals.Setup()
	<-graceful
	log.Info("starting graceful shutdown")

	wrkr.Stop()
	log.Info("worker shutdown")
	return nil
}

func runScanOnce(c *cli.Context) error {
	log := logger.New()
	_, db, sc, err := setup(c.Context, log)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := sc.Scan(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(summary.String())
	for _, sample := range summary.ErrorSamples {
		fmt.Println("  " + sample)
	}
	return nil
}

func runDedupe(c *cli.Context) error {
	log := logger.New()
	_, db, sc, err := setup(c.Context, log)
	if err != nil {
		return err
	}
	defer db.Close()

	authors, err := sc.MergeDuplicateAuthors(c.Context)
	if err != nil {
		return err
	}
	series, err := sc.MergeDuplicateSeries(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("merged %d duplicate authors and %d duplicate series\n", authors, series)
	return nil
}

func runRecount(c *cli.Context) error {
	log := logger.New()
	_, db, _, err := setup(c.Context, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := catalog.NewService(db).RecalculateCounters(c.Context); err != nil {
		return err
	}
	fmt.Println("counters rebuilt")
	return nil
}

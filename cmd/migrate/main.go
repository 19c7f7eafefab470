// Command migrate applies the directory console schema declaratively with
// the atlas CLI: atlas diffs the live database against the embedded DDL and
// applies the difference.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"ariga.io/atlas-go-sdk/atlasexec"
	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/config"
	"github.com/matthewbaird/dirconsole/internal/database"
)

func main() {
	var (
		url    = flag.String("url", "sqlite://dirconsole.db", "target database URL")
		devURL = flag.String("dev-url", "sqlite://dev?mode=memory", "atlas dev database URL")
		bin    = flag.String("atlas", "atlas", "path to the atlas binary")
		dryRun = flag.Bool("dry-run", false, "print the planned changes without applying them")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("loading configuration")
	}
	log := config.NewLogger(cfg)

	dir, err := os.MkdirTemp("", "dirconsole-migrate")
	if err != nil {
		log.WithError(err).Fatal("creating working directory")
	}
	defer os.RemoveAll(dir)

	schemaPath := filepath.Join(dir, "schema.sql")
	if err := os.WriteFile(schemaPath, []byte(database.Schema), 0o600); err != nil {
		log.WithError(err).Fatal("writing schema")
	}

	client, err := atlasexec.NewClient(dir, *bin)
	if err != nil {
		log.WithError(err).Fatal("initializing atlas client")
	}

	res, err := client.SchemaApply(context.Background(), &atlasexec.SchemaApplyParams{
		URL:         *url,
		To:          "file://" + schemaPath,
		DevURL:      *devURL,
		DryRun:      *dryRun,
		AutoApprove: true,
	})
	if err != nil {
		log.WithError(err).Fatal("applying schema")
	}

	entry := log.WithFields(logrus.Fields{"url": *url, "dry_run": *dryRun})
	if *dryRun {
		for _, stmt := range res.Changes.Pending {
			entry.WithField("statement", stmt).Info("migrate: pending")
		}
		return
	}
	entry.WithField("applied", len(res.Changes.Applied)).Info("migrate: schema applied")
}

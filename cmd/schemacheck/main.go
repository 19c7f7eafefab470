// cmd/schemacheck validates a CUE directory definition file and reports
// drift between the file and the directories stored in a database.
//
// Checks:
//   - the file compiles against the directory definition schema
//   - every directory passes configuration validation, with all problems
//     listed at once
//   - with -db, directories stored under the same id carry the same fields
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/database"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

func main() {
	dsn := flag.String("db", "", "database to compare against (optional)")
	flag.Parse()
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: schemacheck [-db dsn] directories.cue")
		os.Exit(2)
	}
	path := flag.Arg(0)

	fmt.Printf("Phase 1: Compiling %s...\n", path)
	dirs, err := schema.LoadCUEFile(path)
	if err != nil {
		log.WithError(err).Fatal("schemacheck: CUE validation failed")
	}
	fmt.Printf("  %d directories decoded.\n", len(dirs))

	fmt.Println("Phase 2: Validating directory configuration...")
	if err := schema.NewRegistry().RegisterAll(dirs); err != nil {
		var problems schema.ConfigErrors
		if errors.As(err, &problems) {
			for _, p := range problems {
				fmt.Println("  " + p.String())
			}
			os.Exit(1)
		}
		log.WithError(err).Fatal("schemacheck: registering directories")
	}
	fmt.Println("  All directories validate.")

	if *dsn == "" {
		fmt.Println("\nschemacheck: OK")
		return
	}

	fmt.Println("Phase 3: Comparing with stored directories...")
	ctx := context.Background()
	db, err := database.Open(ctx, *dsn)
	if err != nil {
		log.WithError(err).Fatal("schemacheck: opening database")
	}
	defer db.Close()
	stored, err := schema.NewSQLStore(db).LoadAll(ctx)
	if err != nil {
		log.WithError(err).Fatal("schemacheck: loading stored directories")
	}

	drift := schema.Drift(dirs, stored)
	for _, d := range drift {
		fmt.Println("  " + d)
	}
	if len(drift) > 0 {
		os.Exit(1)
	}
	fmt.Println("\nschemacheck: OK, no drift detected")
}

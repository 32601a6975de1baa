// Command neisandb is a local CLI over one database directory: insert,
// find, count, and flush a collection from the command line. Spec §1's
// Non-goals exclude any network surface, so this replaces the teacher's
// gRPC listener with direct in-process calls against a Database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neisanworks/neisandb/internal/logger"
	"github.com/neisanworks/neisandb/pkg/collection"
	"github.com/neisanworks/neisandb/pkg/engineerr"
	"github.com/neisanworks/neisandb/pkg/neisandb"
)

var (
	dir        = flag.String("dir", "./data", "Database directory")
	coll       = flag.String("collection", "", "Collection name")
	op         = flag.String("op", "", "Operation: insert, find-one, find, count, flush")
	recordJSON = flag.String("record", "", "JSON object for insert")
	idFlag     = flag.Uint64("id", 0, "Record id for find-one")
	level      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	pretty     = flag.Bool("pretty", true, "Pretty-print logs")
)

func main() {
	flag.Parse()
	logger.InitGlobal(logger.Config{Level: *level, Pretty: *pretty})
	log := logger.Global()

	if *coll == "" || *op == "" {
		log.Error("-collection and -op are required").Send()
		flag.Usage()
		os.Exit(2)
	}

	db, err := neisandb.Open(neisandb.DatabaseOptions{Directory: *dir})
	if err != nil {
		log.Error("open database failed").Err(err).Send()
		os.Exit(1)
	}
	defer db.Close()

	c, err := db.Collection(collection.Options{Name: *coll})
	if err != nil {
		log.Error("open collection failed").Str("collection", *coll).Err(err).Send()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down gracefully").Send()
		cancel()
	}()

	result := run(ctx, c, *op, *recordJSON, uint32(*idFlag))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if !result.OK {
		os.Exit(1)
	}
}

func run(ctx context.Context, c *collection.Collection, op, recordJSON string, id uint32) engineerr.Result {
	switch op {
	case "insert":
		var record map[string]any
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			return engineerr.GeneralErrorResult(fmt.Sprintf("invalid -record JSON: %v", err))
		}
		inst, err := c.Insert(ctx, record)
		return engineerr.ToResult(inst, err)

	case "find-one":
		inst, found, err := c.FindOne(ctx, collection.ByID(id))
		if err != nil {
			return engineerr.ToResult(nil, err)
		}
		if !found {
			return engineerr.ToResult(nil, nil)
		}
		return engineerr.ToResult(inst, nil)

	case "find":
		instances, err := c.Find(ctx, nil, collection.FindOptions{})
		return engineerr.ToResult(instances, err)

	case "count":
		n, err := c.Count(ctx, nil)
		return engineerr.ToResult(n, err)

	case "flush":
		err := c.Flush()
		return engineerr.ToResult(map[string]int64{"max_lsn": c.MaxLSN(), "last_flushed_lsn": c.LastFlushedLSN()}, err)

	default:
		return engineerr.GeneralErrorResult(fmt.Sprintf("unknown -op %q", op))
	}
}

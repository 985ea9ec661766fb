// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ssp-sql inspects the SSP boards registered in the condition
// database and their register settings.
package main // import "github.com/go-lpc/ssp/cmd/ssp-sql"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-lpc/ssp/conddb"
)

const (
	dbname = "ssp"
)

func main() {
	log.SetPrefix("ssp-sql: ")
	log.SetFlags(0)

	var (
		host  = flag.String("host", "", "condition database host (default: localhost)")
		board = flag.Int("board", 0, "board ID to inspect (0: last registered board)")
	)

	flag.Parse()

	db, err := conddb.Open(*host, dbname)
	if err != nil {
		log.Fatalf("could not open SSP db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, uint32(*board))
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *conddb.DB, board uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boards, err := db.Boards(ctx)
	if err != nil {
		return fmt.Errorf("could not get boards: %w", err)
	}
	log.Printf("boards: %d", len(boards))
	for _, brd := range boards {
		log.Printf(">>> %v", brd)
	}

	if board == 0 {
		board, err = db.LastBoard(ctx)
		if err != nil {
			return fmt.Errorf("could not get last board: %w", err)
		}
	}
	log.Printf("board: %d", board)

	settings, err := db.RegisterSettings(ctx, board)
	if err != nil {
		return fmt.Errorf("could not get register settings of board %d: %w", board, err)
	}
	log.Printf("settings: %d", len(settings))
	for _, s := range settings {
		log.Printf(">>> %s = 0x%08x", s.Name, s.Value)
	}

	return nil
}

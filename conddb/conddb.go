// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb retrieves the configuration of SSP modules from the
// condition database.
package conddb // import "github.com/go-lpc/ssp/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/ssp/regmap"
	_ "github.com/go-sql-driver/mysql"
)

const (
	defaultHost = "localhost"
	timeout     = 5 * time.Second
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve the configuration of SSP
// modules from the condition database.
type DB struct {
	db   *sql.DB
	name string // name of the condition database
}

// Open opens a connection to the database dbname on host.
// An empty host means the local host.
func Open(host, dbname string) (*DB, error) {
	if host == "" {
		host = defaultHost
	}
	db, err := sql.Open(drvName, dsn(host, dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(host, db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastBoard returns the identifier of the last registered board.
func (db *DB) LastBoard(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var board uint32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier FROM boards ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return board, fmt.Errorf("conddb: could not query board-id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&board)
		if err != nil {
			return board, fmt.Errorf("conddb: could not get board-id value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return board, fmt.Errorf("conddb: could not scan db for board-id: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return board, fmt.Errorf("conddb: context error while retrieving board-id: %w", err)
	}

	return board, nil
}

// Boards returns the registered boards.
func (db *DB) Boards(ctx context.Context) ([]Board, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var boards []Board
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, serial, module_id, link, addr FROM boards ORDER BY identifier",
	)
	if err != nil {
		return boards, fmt.Errorf("conddb: could not run boards query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var brd Board
		err = rows.Scan(&brd.ID, &brd.Serial, &brd.ModuleID, &brd.Link, &brd.Addr)
		if err != nil {
			return boards, fmt.Errorf("conddb: could not scan boards: %w", err)
		}
		boards = append(boards, brd)
	}

	if err := rows.Err(); err != nil {
		return boards, fmt.Errorf("conddb: could not scan db for boards: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return boards, fmt.Errorf("conddb: context error while retrieving boards: %w", err)
	}

	return boards, nil
}

// RegisterSettings returns the register overrides of a board, in the
// order they should be applied.
func (db *DB) RegisterSettings(ctx context.Context, board uint32) ([]regmap.Setting, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var settings []regmap.Setting
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT registers.name, registers.value FROM registers
WHERE (
	registers.board=?
)
ORDER BY registers.seq
`,
		board,
	)
	if err != nil {
		return settings, fmt.Errorf("conddb: could not run register settings query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var s regmap.Setting
		err = rows.Scan(&s.Name, &s.Value)
		if err != nil {
			return settings, fmt.Errorf("conddb: could not scan row %d for register settings: %w", i, err)
		}
		i++
		settings = append(settings, s)
	}

	if err := rows.Err(); err != nil {
		return settings, fmt.Errorf("conddb: could not scan db for register settings: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return settings, fmt.Errorf("conddb: context error while retrieving register settings: %w", err)
	}

	return settings, nil
}

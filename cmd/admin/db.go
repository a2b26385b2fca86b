package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite index path (the server's index_db setting)")
	limit := fs.Int("limit", 20, "result limit")
	alias := fs.String("alias", "", "alias filter (sessions)")
	failed := fs.Bool("failed", false, "only chunks whose last save failed (chunks)")
	_ = fs.Parse(args)

	q := "cycles"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if strings.TrimSpace(*dbPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -db")
		os.Exit(2)
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fatal("open", err)
	}
	defer db.Close()

	if err := runQuery(db, q, queryOpts{Limit: *limit, Alias: *alias, Failed: *failed}, os.Stdout); err != nil {
		fatal(q, err)
	}
}

type queryOpts struct {
	Limit  int
	Alias  string
	Failed bool
}

var errUnknownQuery = errors.New("unknown query (want cycles, chunks or sessions)")

// runQuery prints one JSON line per row of the named query.
func runQuery(db *sql.DB, q string, o queryOpts, w io.Writer) error {
	switch q {
	case "cycles":
		rows, err := db.Query(`SELECT seq,started_at,duration_ms,written,skipped,failed FROM save_cycles ORDER BY seq DESC LIMIT ?`, o.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq        int64  `json:"seq"`
				StartedAt  string `json:"started_at"`
				DurationMS int64  `json:"duration_ms"`
				Written    int    `json:"written"`
				Skipped    int    `json:"skipped"`
				Failed     int    `json:"failed"`
			}
			if err := rows.Scan(&r.Seq, &r.StartedAt, &r.DurationMS, &r.Written, &r.Skipped, &r.Failed); err != nil {
				return err
			}
			writeJSON(w, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

	case "chunks":
		query := `SELECT x,y,digest,height,saves,last_error,saved_at FROM chunks`
		if o.Failed {
			query += ` WHERE last_error IS NOT NULL`
		}
		query += ` ORDER BY saved_at DESC LIMIT ?`
		rows, err := db.Query(query, o.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				X         int            `json:"x"`
				Y         int            `json:"y"`
				Digest    string         `json:"digest"`
				Height    int            `json:"height"`
				Saves     int            `json:"saves"`
				LastError sql.NullString `json:"-"`
				Error     string         `json:"last_error,omitempty"`
				SavedAt   string         `json:"saved_at"`
			}
			if err := rows.Scan(&r.X, &r.Y, &r.Digest, &r.Height, &r.Saves, &r.LastError, &r.SavedAt); err != nil {
				return err
			}
			r.Error = r.LastError.String
			writeJSON(w, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

	case "sessions":
		query := `SELECT at,kind,session_id,alias,detail FROM sessions`
		qargs := []any{}
		if o.Alias != "" {
			query += ` WHERE alias=?`
			qargs = append(qargs, o.Alias)
		}
		query += ` ORDER BY id DESC LIMIT ?`
		qargs = append(qargs, o.Limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				At        string `json:"at"`
				Kind      string `json:"kind"`
				SessionID string `json:"session_id"`
				Alias     string `json:"alias,omitempty"`
				Detail    string `json:"detail,omitempty"`
			}
			if err := rows.Scan(&r.At, &r.Kind, &r.SessionID, &r.Alias, &r.Detail); err != nil {
				return err
			}
			writeJSON(w, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%q: %w", q, errUnknownQuery)
	}
	return nil
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

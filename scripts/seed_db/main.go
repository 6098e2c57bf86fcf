// Seeds a local SQLite database with demo data covering the interesting
// logical types (decimals, timestamps, nullable columns) so the CLI has
// something to browse and export during development.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	path := "demo.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	slog.Info("Seeding demo database", "path", path)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			score REAL
		)
	`)
	if err != nil {
		panic(err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		panic(err)
	}

	var userCount int
	_ = db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount)
	if userCount >= 10000 {
		slog.Info("Users already seeded", "count", userCount)
		return
	}

	start := time.Now()
	const total = 10000
	const batchSize = 500

	for i := 0; i < total; i += batchSize {
		vals := []any{}
		placeholders := []string{}
		for j := 0; j < batchSize; j++ {
			idx := i + j + 1
			placeholders = append(placeholders, "(?, ?, ?)")
			vals = append(vals,
				fmt.Sprintf("User%d", idx),
				fmt.Sprintf("user%d@example.com", idx),
				float64(idx)*0.1,
			)
		}
		stmt := "INSERT INTO users (name, email, score) VALUES " + strings.Join(placeholders, ",")
		if _, err := db.Exec(stmt, vals...); err != nil {
			panic(err)
		}
	}

	for i := 0; i < total; i += batchSize {
		vals := []any{}
		placeholders := []string{}
		for j := 0; j < batchSize; j++ {
			uid := (i+j)%total + 1
			placeholders = append(placeholders, "(?, ?, ?, ?)")
			vals = append(vals,
				uid,
				fmt.Sprintf("%d.%02d", uid, uid%100),
				"USD",
				"COMPLETED",
			)
		}
		stmt := "INSERT INTO transactions (user_id, amount, currency, status) VALUES " + strings.Join(placeholders, ",")
		if _, err := db.Exec(stmt, vals...); err != nil {
			panic(err)
		}
	}

	slog.Info("Seeding complete", "rows", total*2, "duration", time.Since(start))
}

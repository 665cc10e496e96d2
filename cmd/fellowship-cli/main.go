package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: fellowship-cli migrate")
			fmt.Println()
			fmt.Println("Run database migrations from the migrations/ directory.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  DATABASE_URL  PostgreSQL connection string (required)")
			return
		}
		os.Exit(runMigrate())
	case "seed":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: fellowship-cli seed")
			fmt.Println()
			fmt.Println("Seed the database with demo data: 3 users, 2 rooms, messages, and a campaign.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  DATABASE_URL  PostgreSQL connection string (required)")
			return
		}
		os.Exit(runSeed())
	case "health":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: fellowship-cli health")
			fmt.Println()
			fmt.Println("Check if the Fellowship server is running.")
			fmt.Println()
			fmt.Println("Environment:")
			fmt.Println("  SERVER_URL  Server base URL (default: http://localhost:8080)")
			return
		}
		os.Exit(runHealth())
	case "chat":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: fellowship-cli chat [room]")
			fmt.Println()
			fmt.Println("Join a chat room (default: the first room) and follow it live.")
			fmt.Println()
			fmt.Println("Commands inside the room:")
			fmt.Println("  <text>             send a message")
			fmt.Println("  /reply <id> <text> reply to a message")
			fmt.Println("  /delete <id>       delete a message")
			fmt.Println("  /quit, Ctrl-C      leave")
			fmt.Println()
			printLiveEnv()
			return
		}
		os.Exit(runChat(os.Args[2:]))
	case "campaigns":
		if hasFlag("--help", os.Args[2:]) {
			fmt.Println("Usage: fellowship-cli campaigns")
			fmt.Println()
			fmt.Println("Show fundraising campaigns and announce donations as they arrive.")
			fmt.Println()
			printLiveEnv()
			return
		}
		os.Exit(runCampaigns())
	case "version":
		fmt.Printf("fellowship-cli %s\n", version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fellowship-cli <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate    Run database migrations")
	fmt.Println("  seed       Seed demo data (users, rooms, messages, campaign)")
	fmt.Println("  health     Check if the server is running")
	fmt.Println("  chat       Join a chat room")
	fmt.Println("  campaigns  Follow fundraising campaigns")
	fmt.Println("  version    Print version info")
	fmt.Println()
	fmt.Println("Run 'fellowship-cli <command> --help' for details on a command.")
}

func printLiveEnv() {
	fmt.Println("Environment:")
	fmt.Println("  SERVER_URL           Server base URL (default: http://localhost:8080)")
	fmt.Println("  FELLOWSHIP_USER      Username (required)")
	fmt.Println("  FELLOWSHIP_PASSWORD  Password (required)")
}

func hasFlag(flag string, args []string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "error: %s environment variable is required\n", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- migrate ---

func runMigrate() int {
	dbURL := requireEnv("DATABASE_URL")

	fmt.Println("connecting to database...")
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: migration init failed: %v\n", err)
		return 1
	}
	defer m.Close()

	fmt.Println("running migrations...")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(os.Stderr, "error: migration failed: %v\n", err)
		return 1
	}

	v, dirty, _ := m.Version()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Printf("no new migrations (current version: %d)\n", v)
	} else {
		fmt.Printf("migrations applied (version: %d, dirty: %v)\n", v, dirty)
	}
	return 0
}

// --- seed ---

func runSeed() int {
	dbURL := requireEnv("DATABASE_URL")
	ctx := context.Background()

	fmt.Println("connecting to database...")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: database connection failed: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: database ping failed: %v\n", err)
		return 1
	}

	ids, err := snowflake.NewNode(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: snowflake init failed: %v\n", err)
		return 1
	}

	type seedUser struct {
		id                   int64
		username, name, role string
		password             string
		hash                 string
	}
	users := []*seedUser{
		{username: "pastor", name: "Pastor Dan", role: "admin", password: "password123"},
		{username: "grace", name: "Grace", role: "leader", password: "password456"},
		{username: "sam", name: "Sam", role: "member", password: "password789"},
	}

	fmt.Println("hashing passwords...")
	for _, u := range users {
		u.id = ids.Next()
		if u.hash, err = auth.HashPassword(u.password); err != nil {
			fmt.Fprintf(os.Stderr, "error: hashing password: %v\n", err)
			return 1
		}
	}
	pastor, grace, sam := users[0], users[1], users[2]

	generalID := ids.Next()
	prayerID := ids.Next()
	msg1ID := ids.Next()
	msg2ID := ids.Next()
	msg3ID := ids.Next()
	campaignID := ids.Next()
	now := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: starting transaction: %v\n", err)
		return 1
	}
	defer tx.Rollback(ctx)

	// Re-running the seed reuses existing users and rooms by name.
	fmt.Println("creating users...")
	for _, u := range users {
		err = tx.QueryRow(ctx,
			`INSERT INTO users (id, username, display_name, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
			 RETURNING id`,
			u.id, u.username, u.name, u.role, u.hash, now,
		).Scan(&u.id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: creating user %s: %v\n", u.username, err)
			return 1
		}
	}

	fmt.Println("creating rooms...")
	for _, r := range []struct {
		id   *int64
		name string
	}{{&generalID, "general"}, {&prayerID, "prayer"}} {
		err = tx.QueryRow(ctx,
			`INSERT INTO rooms (id, name, created_at) VALUES ($1,$2,$3)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			*r.id, r.name, now,
		).Scan(r.id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: creating room %s: %v\n", r.name, err)
			return 1
		}
	}

	fmt.Println("creating messages...")
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, room_id, author_id, content, reply_to_id, created_at)
		 VALUES ($1,$2,$3,$4,NULL,$5), ($6,$7,$8,$9,$10,$11), ($12,$13,$14,$15,NULL,$16)
		 ON CONFLICT (id) DO NOTHING`,
		msg1ID, generalID, pastor.id, "Welcome to Grace Fellowship chat!", now,
		msg2ID, generalID, sam.id, "Glad to be here, see everyone Sunday.", msg1ID, now,
		msg3ID, prayerID, grace.id, "Share your prayer requests here.", now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating messages: %v\n", err)
		return 1
	}

	fmt.Println("creating campaign...")
	_, err = tx.Exec(ctx,
		`INSERT INTO campaigns (id, title, description, target_amount, end_date, created_at) VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO NOTHING`,
		campaignID, "Roof Repair", "Replace the sanctuary roof before winter.", int64(500000),
		now.AddDate(0, 2, 0), now,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating campaign: %v\n", err)
		return 1
	}

	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: committing transaction: %v\n", err)
		return 1
	}

	fmt.Println()
	fmt.Println("seed complete:")
	for _, u := range users {
		fmt.Printf("  user:     %s (%s, password: %s)\n", u.username, u.role, u.password)
	}
	fmt.Printf("  rooms:    #general, #prayer\n")
	fmt.Printf("  messages: 3 messages, one reply\n")
	fmt.Printf("  campaign: Roof Repair (target 5000.00)\n")
	return 0
}

// --- health ---

func runHealth() int {
	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	url := serverURL + "/health"

	fmt.Printf("checking %s ...\n", url)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status: %d\n", resp.StatusCode)
	if len(body) > 0 {
		fmt.Printf("body:   %s\n", string(body))
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Println("server is healthy")
		return 0
	}
	fmt.Fprintln(os.Stderr, "server returned non-200 status")
	return 1
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations (default lists them)")
	dir := flag.String("dir", filepath.Join("internal", "migrations"), "migrations directory")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("read migrations dir: %v", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	// numeric prefixes order the files
	sort.Strings(names)

	for _, name := range names {
		if !*apply {
			fmt.Println(name)
			continue
		}
		b, err := os.ReadFile(filepath.Join(*dir, name))
		if err != nil {
			log.Fatalf("read file %s: %v", name, err)
		}
		if _, err := db.Exec(context.Background(), string(b)); err != nil {
			log.Fatalf("failed to apply %s: %v", name, err)
		}
		fmt.Printf("applied %s\n", name)
	}
}

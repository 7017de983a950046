package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/kdimtricp/mediaverify/internal/database"
)

func main() {
	var (
		host           = flag.String("host", "localhost", "Database host")
		port           = flag.Int("port", 5432, "Database port")
		user           = flag.String("user", "mediaverify", "Database user")
		password       = flag.String("password", "mediaverify_dev", "Database password")
		dbName         = flag.String("name", "mediaverify", "Database name")
		migrationsPath = flag.String("migrations", "./migrations", "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
		down           = flag.Bool("down", false, "Roll back the latest migration")
	)
	flag.Parse()

	config := database.Config{
		Type:     "postgres",
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Name:     *dbName,
	}

	// Override with environment variables if set
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		p, err := strconv.Atoi(env)
		if err != nil {
			log.Fatal("Invalid DB_PORT:", err)
		}
		config.Port = p
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Name = env
	}
	if env := os.Getenv("MIGRATIONS_PATH"); env != "" && !isFlagSet("migrations") {
		*migrationsPath = env
	}

	url := config.PostgresURL()

	switch {
	case *status:
		st, err := database.GetMigrationStatus(url, *migrationsPath)
		if err != nil {
			log.Fatal("Failed to get migration status:", err)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		if !st.Applied {
			fmt.Println("No migrations applied")
			return
		}
		state := "clean"
		if st.Dirty {
			state = "dirty"
		}
		fmt.Printf("Version %d [%s]\n", st.Version, state)
	case *down:
		fmt.Printf("Rolling back latest migration from %s...\n", *migrationsPath)
		if err := database.RollbackMigration(url, *migrationsPath); err != nil {
			log.Fatal("Failed to roll back migration:", err)
		}
		fmt.Println("Rollback completed successfully!")
	default:
		fmt.Printf("Running migrations from %s...\n", *migrationsPath)
		if err := database.RunMigrations(url, *migrationsPath); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
		fmt.Println("Migrations completed successfully!")
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// Command migrate управляет схемой БД вне основного сервиса:
// применяет и откатывает миграции, снимает dirty-состояние после неудачной миграции.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/pkg/database"
)

func main() {
	action := flag.String("action", "up", "up | down | force | version")
	steps := flag.Int("steps", 1, "количество шагов для down")
	version := flag.Int("version", -1, "версия для force")
	source := flag.String("source", database.DefaultMigrationsURL, "источник миграций")
	flag.Parse()

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		db := config.DatabaseConfig{
			Host:     os.Getenv("DATABASE_HOST"),
			Port:     envOr("DATABASE_PORT", "5432"),
			User:     os.Getenv("DATABASE_USER"),
			Password: os.Getenv("DATABASE_PASSWORD"),
			DBName:   os.Getenv("DATABASE_DBNAME"),
			SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
		}
		if db.Host == "" || db.DBName == "" || db.User == "" {
			log.Fatal("Задайте DATABASE_URL или DATABASE_HOST, DATABASE_USER, DATABASE_DBNAME")
		}
		connStr = db.PostgresConnectionString()
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithDatabaseInstance(*source, "postgres", driver)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(m, *action, *steps, *version); err != nil {
		log.Fatalf("Ошибка выполнения '%s': %v", *action, err)
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("Миграции не применены")
	case err != nil:
		log.Fatal(err)
	default:
		fmt.Printf("Текущая версия: %d (dirty=%t)\n", v, dirty)
	}
}

func run(m *migrate.Migrate, action string, steps, version int) error {
	var err error
	switch action {
	case "up":
		err = m.Up()
	case "down":
		if steps <= 0 {
			return fmt.Errorf("steps must be positive")
		}
		err = m.Steps(-steps)
	case "force":
		// Снимает dirty-состояние, не выполняя SQL
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
		err = m.Force(version)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("Изменений нет")
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

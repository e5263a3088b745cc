package tasks

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
)

// ConnectDB creates a new MySQL database connection
func ConnectDB(cfg *configs.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	if cfg.DBSSL {
		dsn += "&tls=true"
	}

	logger.Info("Connecting to MySQL",
		zap.String("host", cfg.DBHost),
		zap.String("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to MySQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("MySQL connection established")
	return db, nil
}

package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/bottlecaps/models"
)

var db *gorm.DB

// Models lists every table the server owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Claim{},
		&models.ClaimLog{},
		&models.Promotion{},
		&models.Referral{},
		&models.BonusGrant{},
		&models.BlacklistEntry{},
		&models.Media{},
	}
}

// DSN builds the connection string for the configured driver. DatabaseURI wins
// when set.
func DSN(c AppConfig) string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	if c.DBDriver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func dialector(c AppConfig) (gorm.Dialector, error) {
	switch c.DBDriver {
	case DriverMySQL:
		return mysql.Open(DSN(c)), nil
	case DriverPostgres:
		return postgres.Open(DSN(c)), nil
	}
	return nil, fmt.Errorf("database driver %q has no SQL dialector", c.DBDriver)
}

// InitDatabase connects to MySQL or PostgreSQL and migrates the given models.
// It must not be called with the memory driver.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	dial, err := dialector(cfg)
	if err != nil {
		log.Fatalf("failed to select database driver: %v", err)
	}

	// Derive the GORM level from the app LogLevel and raise the slow-sql threshold to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	db, err = gorm.Open(dial, gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	// Moderate pool with eager recycling so idle connections are not cut by the server's wait_timeout
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// Ping at boot so network/auth problems surface before the first query
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if len(modelDefs) > 0 {
		if err := db.AutoMigrate(modelDefs...); err != nil {
			log.Fatalf("auto migration failed: %v", err)
		}
	}

	return db
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		// Suppress per-statement logs; keep warnings (including slow SQL)
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

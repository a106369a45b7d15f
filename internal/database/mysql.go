package database

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := mysqlDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func mysqlDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql: user and database name are required")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	credentials := cfg.User
	if cfg.Password != "" {
		credentials += ":" + cfg.Password
	}

	// parseTime is required for gorm to scan DATETIME into time.Time.
	opts := url.Values{}
	opts.Set("charset", "utf8mb4")
	opts.Set("parseTime", "True")
	opts.Set("loc", "Local")
	for key, value := range cfg.Options {
		opts.Set(key, value)
	}

	keys := make([]string, 0, len(opts))
	for key := range opts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	query := ""
	for i, key := range keys {
		if i > 0 {
			query += "&"
		}
		query += fmt.Sprintf("%s=%s", key, opts.Get(key))
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", credentials, host, port, cfg.Name, query), nil
}

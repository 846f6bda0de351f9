package testutil

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.uber.org/multierr"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"neuro-match/models"
)

type Cleanup func() error

const mysqlExpireSeconds = 120

// NewPool 连接本地 Docker；Docker 不可用时返回错误，调用方应跳过测试
func NewPool() (*dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("could not construct pool: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to Docker: %w", err)
	}
	pool.MaxWait = 2 * time.Minute
	return pool, nil
}

// NewMySQLDB 启动一个 MySQL 8.0 容器并返回迁移好的 gorm 连接
func NewMySQLDB(pool *dockertest.Pool) (_ *gorm.DB, _ Cleanup, err error) {
	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "mysql",
			Tag:        "8.0",
			Env: []string{
				"MYSQL_DATABASE=neuro_match",
				"MYSQL_PASSWORD=password",
				"MYSQL_USER=user",
				"MYSQL_ROOT_PASSWORD=password",
			},
		},
		func(config *docker.HostConfig) {
			// コンテナが終了したら削除する
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run mysql container: %w", err)
	}

	var db *gorm.DB
	cleanup := func() error {
		var errs error
		if db != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				errs = multierr.Append(errs, sqlDB.Close())
			}
		}
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to purge mysql container: %w", purgeErr))
		}
		return errs
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	if err = resource.Expire(mysqlExpireSeconds); err != nil {
		return nil, nil, fmt.Errorf("failed to set expire time: %w", err)
	}

	config := &mysql.Config{
		User:                 "user",
		Passwd:               "password",
		Net:                  "tcp",
		Addr:                 resource.GetHostPort("3306/tcp"),
		DBName:               "neuro_match",
		ParseTime:            true,
		AllowNativePasswords: true,
		Params:               map[string]string{"charset": "utf8mb4"},
	}

	// MySQL 启动较慢，重试直到可以 Ping 通
	err = pool.Retry(func() error {
		m, retryErr := sql.Open("mysql", config.FormatDSN())
		if retryErr != nil {
			return retryErr
		}
		defer m.Close()
		return m.Ping()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	db, err = gorm.Open(gormmysql.Open(config.FormatDSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	if err = models.Migrate(db); err != nil {
		return nil, nil, err
	}
	return db, cleanup, nil
}

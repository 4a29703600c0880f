package common

import (
	"database/sql"
	"time"

	"emperror.dev/errors"
	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"
	"github.com/ward-gg/wardbot/common/config"
	_ "modernc.org/sqlite"
)

const (
	VERSION = "0.12.0"
)

var (
	DB        *sql.DB
	RedisPool *radix.Pool

	logger = GetFixedPrefixLogger("common")

	ConfSqlitePath = config.RegisterOption("wardbot.sqlite.path", "Path to the sqlite database file", "wardbot.sqlite")
	ConfRedisAddr  = config.RegisterOption("wardbot.redis.addr", "Address of the redis server", "localhost:6379")
	ConfBotUserID  = config.RegisterOption("wardbot.bot.user_id", "User id the bot runs as, used as the actor on automated sanctions", 0)

	initialized bool
)

// BotUserID is the actor recorded on sanctions applied automatically by the
// bot itself rather than by a moderator.
func BotUserID() int64 {
	return int64(ConfBotUserID.GetInt())
}

// Init sets up the core services shared by all plugins: the sqlite database,
// the redis pool and the registered database schemas. It has to run before
// any plugin is used.
func Init() error {
	if initialized {
		return nil
	}

	config.Load()

	db, err := sql.Open("sqlite", ConfSqlitePath.GetString())
	if err != nil {
		return errors.WithMessage(err, "common.Init: open sqlite")
	}

	// writes are serialized by sqlite itself, but concurrent write
	// transactions return busy errors without a timeout
	if _, err := db.Exec("PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;"); err != nil {
		return errors.WithMessage(err, "common.Init: sqlite pragmas")
	}

	DB = db

	pool, err := radix.NewPool("tcp", ConfRedisAddr.GetString(), 10,
		radix.PoolOnFullBuffer(64, time.Second))
	if err != nil {
		return errors.WithMessage(err, "common.Init: redis pool")
	}
	RedisPool = pool

	if err := initQueuedSchemas(); err != nil {
		return err
	}

	initialized = true
	logger.Info("core services initialized, version ", VERSION)
	return nil
}

// InitTest sets up an in-memory database for package tests, skipping redis.
func InitTest() error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return err
	}
	// a second pooled connection would get its own empty memory database
	db.SetMaxOpenConns(1)

	DB = db
	return initQueuedSchemas()
}

// GetFixedPrefixLogger returns a logger with the given prefix set as the "p" field
func GetFixedPrefixLogger(prefix string) *logrus.Entry {
	return logrus.WithField("p", prefix)
}

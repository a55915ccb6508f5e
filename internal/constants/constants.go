package constants

import (
	"math"
	"time"
)

const (
	DefaultAPIBaseURL = "https://api.guildwars2.com/v2"
	BatchSize         = 200
	BatchConcurrency  = 4
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	LoadTimeout        = 2 * time.Minute
	BuildTimeout       = 10 * time.Minute
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// BundledIndexTimestamp is reported as the build time of the embedded
	// default id list (2023-11-14T22:13:20Z).
	BundledIndexTimestamp int64 = 1700000000000

	// OrderSentinel sorts categories and groups without an order last.
	OrderSentinel = math.MaxInt32

	UncategorizedName = "Uncategorized"
	UncategorizedID   = 0
)

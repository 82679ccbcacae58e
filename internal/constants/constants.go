package constants

import "time"

const (
	DefaultRoomTTL       = 6 * time.Hour
	DefaultSweepInterval = time.Minute
	ShutdownTimeout      = 10 * time.Second
	RequestTimeout       = 15 * time.Second
)

const (
	JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	JoinCodeLength   = 6
	CodeAttempts     = 5
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 30 * time.Minute
	DBSlowQuery       = 200 * time.Millisecond
)

const (
	// Notifications buffered per websocket subscriber before it is dropped.
	SubscriberBuffer = 32
	WSWriteTimeout   = 5 * time.Second
	RelayChannel     = "inhouse:rooms:"
)

package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the top-level configuration tree.
type Bootstrap struct {
	Guard *Guard
	Data  *Data
	Log   *Log
}

// Guard configures the resilience primitives.
type Guard struct {
	Breakers []*Guard_Breaker
	Pool     *Guard_Pool
	Lock     *Guard_Lock
	Retry    *Guard_Retry
	Quota    *Guard_Quota
}

// Guard_Breaker configures one named circuit breaker.
type Guard_Breaker struct {
	Name             string
	FailureThreshold int32
	ResetTimeout     *durationpb.Duration
	HalfOpenRequests int32
}

// Guard_Pool configures the shared resource pool.
type Guard_Pool struct {
	MaxInstances     int32
	AcquireTimeout   *durationpb.Duration
	OperationTimeout *durationpb.Duration
}

// Guard_Lock configures the cross-process job lock.
type Guard_Lock struct {
	KeyPrefix string
	Ttl       *durationpb.Duration
}

// Guard_Retry configures default retry behavior.
type Guard_Retry struct {
	Attempts int32
	Delay    *durationpb.Duration
	Factor   float64
}

// Guard_Quota configures the rolling-window send quota.
type Guard_Quota struct {
	Limit    int32
	Window   *durationpb.Duration
	CacheTtl *durationpb.Duration
}

// Data configures external data sources.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the relational store holding the send log.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the shared key-value store backing the job lock.
// Redis is optional; when absent the lock degrades to process-local backing.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

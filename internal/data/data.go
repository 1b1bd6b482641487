// Package data provides data access layer implementations.
// It handles the Redis lock store and the MySQL send log / event tables.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers. Repositories are provided through the biz
// layer's set, which binds them onto the biz interfaces.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewMySQLClient,
)

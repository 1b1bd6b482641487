// Package service exposes the composed surface jobs call in-process.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewJobRunner,
)

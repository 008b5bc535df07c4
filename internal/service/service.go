// Package service implements the HTTP API handlers of the TryOn service.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewUploadService)

// Package server wires the HTTP transport and the scheduled upload drain.
package server

import (
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer, NewDrainServer)

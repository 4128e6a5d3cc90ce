// Package service holds the HTTP handlers, one subpackage per resource.
package service

import (
	"go.uber.org/zap"

	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/social"
)

// Deps is what every handler is built from.
type Deps struct {
	Store       repository.Store
	Feed        *social.Feed
	Stats       social.StatsComputer
	Invalidator social.StatsInvalidator
	Tokens      *utils.TokenIssuer
	Log         *zap.Logger
}

// NewDeps wires the services over store. stats, when non-nil, replaces the
// direct aggregator (for example with a cache) and invalidator is told about
// writes; both may be nil.
func NewDeps(store repository.Store, tokens *utils.TokenIssuer, stats social.StatsComputer, invalidator social.StatsInvalidator, log *zap.Logger) Deps {
	if stats == nil {
		stats = social.NewStats(store)
	}
	if invalidator == nil {
		invalidator = social.NopInvalidator{}
	}
	return Deps{
		Store:       store,
		Feed:        social.NewFeed(store, stats),
		Stats:       stats,
		Invalidator: invalidator,
		Tokens:      tokens,
		Log:         log,
	}
}

// Package ledgerutils is the ledger driver factory package
package ledgerutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/ledger/inmemory"
	"github.com/papercomputeco/engram/pkg/ledger/postgres"
	"github.com/papercomputeco/engram/pkg/ledger/sqlite"
)

type NewLedgerDriverOpts struct {
	ProviderType string
	DBPath       string
	ConnString   string
	Logger       *zap.Logger
}

func NewLedgerDriver(ctx context.Context, o *NewLedgerDriverOpts) (ledger.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlite.NewDriver(o.DBPath, o.Logger)
	case "postgres":
		return postgres.NewDriver(ctx, o.ConnString, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger provider: %s", o.ProviderType)
	}
}

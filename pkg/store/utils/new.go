// Package storeutils is the store driver factory package
package storeutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/store"
	"github.com/papercomputeco/engram/pkg/store/chroma"
	"github.com/papercomputeco/engram/pkg/store/inmemory"
	"github.com/papercomputeco/engram/pkg/store/qdrantstore"
	"github.com/papercomputeco/engram/pkg/store/sqlitevec"
)

type NewStoreDriverOpts struct {
	ProviderType string
	TargetURL    string
	DBPath       string
	Host         string
	Port         int
	Collection   string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewStoreDriver(ctx context.Context, o *NewStoreDriverOpts) (store.Driver, error) {
	switch o.ProviderType {
	case "sqlite-vec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.DBPath,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrantstore.NewDriver(ctx, qdrantstore.Config{
			Host:           o.Host,
			Port:           o.Port,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
		}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported store provider: %s", o.ProviderType)
	}
}

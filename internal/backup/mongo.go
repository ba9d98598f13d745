package backup

import (
	"context"

	"github.com/kadirbelkuyu/mongobackup/internal/database"
)

// MongoConnector opens real server connections through the mongo driver.
type MongoConnector struct{}

func (MongoConnector) Connect(ctx context.Context, uri string) (Catalog, error) {
	conn, err := database.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

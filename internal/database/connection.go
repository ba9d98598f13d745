package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	connectTimeout = 10 * time.Second
	listTimeout    = 10 * time.Second
	closeTimeout   = 5 * time.Second
)

// systemDatabases are hidden from pick lists unless explicitly requested.
var systemDatabases = map[string]bool{
	"admin":  true,
	"config": true,
	"local":  true,
}

type DatabaseInfo struct {
	Name        string
	SizeOnDisk  int64
	Empty       bool
	Collections int
}

// Connection wraps a connected mongo client.
type Connection struct {
	Client *mongo.Client
	URI    string
}

// Connect dials the server and verifies it answers a primary ping.
func Connect(ctx context.Context, uri string) (*Connection, error) {
	return connect(ctx, uri, options.Client().ApplyURI(uri))
}

func connect(ctx context.Context, uri string, opts *options.ClientOptions) (*Connection, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongodb uri is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Connection{Client: client, URI: uri}, nil
}

// Ping opens a short-lived connection with a bounded server selection time.
func Ping(ctx context.Context, uri string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	conn, err := connect(ctx, uri, opts)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

func (c *Connection) Close(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	return c.Client.Disconnect(ctx)
}

func (c *Connection) ListCollectionNames(ctx context.Context, databaseName string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	names, err := c.Client.Database(databaseName).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections of %s: %w", databaseName, err)
	}
	return names, nil
}

// ListDatabases returns databases with size and collection counts. A count
// that cannot be read is left at zero.
func (c *Connection) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	result, err := c.Client.ListDatabases(listCtx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list MongoDB databases: %w", err)
	}

	databases := make([]DatabaseInfo, 0, len(result.Databases))
	for _, db := range result.Databases {
		info := DatabaseInfo{
			Name:       db.Name,
			SizeOnDisk: db.SizeOnDisk,
			Empty:      db.Empty,
		}
		if names, err := c.ListCollectionNames(ctx, db.Name); err == nil {
			info.Collections = len(names)
		}
		databases = append(databases, info)
	}

	return databases, nil
}

// IsSystemDatabase reports whether name is one of the server's own databases.
func IsSystemDatabase(name string) bool {
	return systemDatabases[name]
}

// MaskURI hides credentials embedded in a connection string.
func MaskURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	if slash := strings.Index(rest, "/"); slash >= 0 && slash < at {
		return uri
	}
	return scheme + "://***:***@" + rest[at+1:]
}

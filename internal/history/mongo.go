package history

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/efecan0/trading-gateway-go/internal/config"
	"github.com/efecan0/trading-gateway-go/internal/logger"
	"github.com/efecan0/trading-gateway-go/internal/utils"
)

const OrderLogCollectionName = "orders_log"

var ErrIdempKeyEmpty = errors.New("idemp_key is empty")

// OrderLogDocument mirrors one audit row in the archive collection.
type OrderLogDocument struct {
	IdempKey string    `bson:"idemp_key"`
	Ts       time.Time `bson:"ts"`
	Status   string    `bson:"status"`
	OrderID  string    `bson:"order_id"`
	Result   string    `bson:"result"`
}

// MongoArchive mirrors order-log rows into MongoDB as a secondary audit
// store, independent of the ClickHouse lifetime.
type MongoArchive struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

func ConnectArchive(cfg config.Config) (*MongoArchive, error) {
	logger.DebugF("Connecting to archive database...")
	archive := cfg.Archive

	operationTimeout := utils.ParseStringTime(archive.OperationTimeout)

	encodedUser := url.QueryEscape(archive.Username)
	encodedPass := url.QueryEscape(archive.Password)
	databaseUrl := fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		archive.Host,
		archive.Port,
	)

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(cfg.AppName)
	clientOptions.SetMinPoolSize(archive.MinPoolSize)
	clientOptions.SetMaxPoolSize(archive.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(archive.ConnectIdleTimeout))
	clientOptions.SetConnectTimeout(utils.ParseStringTime(archive.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(archive.SocketTimeout))
	clientOptions.SetHeartbeatInterval(utils.ParseStringTime(archive.Heartbeat))
	if archive.UseTLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		clientOptions.SetTLSConfig(tlsConfig)
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Archive connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Archive connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to archive: %v", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging archive: %v", err)
	}

	db := client.Database(archive.Database)

	_, err = db.Collection(OrderLogCollectionName).Indexes().CreateOne(
		context.Background(),
		mongo.IndexModel{
			Keys:    bson.D{{Key: "idemp_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("orders_log_idemp_key_unique"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error occured while creating archive indexes: %v", err)
	}

	return &MongoArchive{
		client:           client,
		db:               db,
		operationTimeout: operationTimeout,
	}, nil
}

// SaveOrderLog upserts by idempotency key so replayed orders keep one row.
func (a *MongoArchive) SaveOrderLog(idempKey, status, orderID, resultJSON string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.operationTimeout)
	defer cancel()

	if idempKey == "" {
		return ErrIdempKeyEmpty
	}

	doc := OrderLogDocument{
		IdempKey: idempKey,
		Ts:       time.Now(),
		Status:   status,
		OrderID:  orderID,
		Result:   resultJSON,
	}

	filter := bson.D{{Key: "idemp_key", Value: idempKey}}
	opts := options.Replace().SetUpsert(true)

	result, err := a.db.Collection(OrderLogCollectionName).ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		return fmt.Errorf("archive operation failed: %w", err)
	}

	logger.DebugF("Order log archived: idemp_key=%s, matched=%d, modified=%d, upserted=%v",
		idempKey,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)
	return nil
}

func (a *MongoArchive) GetOrderLog(idempKey string) (*OrderLogDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.operationTimeout)
	defer cancel()

	if idempKey == "" {
		return nil, ErrIdempKeyEmpty
	}

	filter := bson.D{{Key: "idemp_key", Value: idempKey}}
	var doc OrderLogDocument

	startTime := time.Now()
	err := a.db.Collection(OrderLogCollectionName).FindOne(ctx, filter).Decode(&doc)
	logger.DebugF("archive query cost: %v", time.Since(startTime))

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("document does not exist: %w", err)
		}
		return nil, fmt.Errorf("archive operation failed: %w", err)
	}
	return &doc, nil
}

// Invoke closes the client; registered with the shutdown cleaner.
func (a *MongoArchive) Invoke(ctx context.Context) error {
	logger.InfoF("Closing archive connection")
	ctx, cancel := context.WithTimeout(ctx, a.operationTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

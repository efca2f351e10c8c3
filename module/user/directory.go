package user

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"OpsFlow/service/chat"
	errs "OpsFlow/tools/errs"
)

const collUsers = "users"

// Config for the mongo-backed directory.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

func (c *Config) norm() {
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.Database == "" {
		c.Database = "opsflow"
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 100
	}
}

type record struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	SID   string             `bson:"sid,omitempty"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
	Role  string             `bson:"role"`
}

// Directory resolves user ids against the platform's users collection.
// It implements chat.UserDirectory.
type Directory struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewDirectory(ctx context.Context, cfg Config) (*Directory, error) {
	cfg.norm()

	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(cfg.MaxPoolSize)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errs.ErrTransientInfra.WrapMsg("mongo connect", "uri", cfg.URI, "err", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, errs.ErrTransientInfra.WrapMsg("mongo ping", "uri", cfg.URI, "err", err)
	}

	return &Directory{
		client: client,
		coll:   client.Database(cfg.Database).Collection(collUsers),
	}, nil
}

// LookupUser fetches a user summary by id. Hex ids are matched by _id,
// anything else by the secondary string id field.
func (d *Directory) LookupUser(ctx context.Context, userID string) (*chat.UserSummary, error) {
	filter := bson.M{"sid": userID}
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		filter = bson.M{"_id": oid}
	}

	var rec record
	err := d.coll.FindOne(ctx, filter).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	if err != nil {
		return nil, errs.ErrTransientInfra.WrapMsg("user lookup", "userId", userID, "err", err)
	}

	return &chat.UserSummary{
		ID:    userID,
		Name:  rec.Name,
		Email: rec.Email,
		Role:  rec.Role,
	}, nil
}

func (d *Directory) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

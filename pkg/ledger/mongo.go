package ledger

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/spec"
)

// MongoStore is a MongoDB-backed ledger for server deployments where the
// engine runs behind the platform's API layer.
//
// The four tables map to collections: installed_packages, sources, cache
// and history. Mutations and their events are committed in a single
// multi-document transaction; the unique _id on package name gives the
// one-row-per-name invariant and serializes concurrent writers per name.
type MongoStore struct {
	client   *mongo.Client
	packages *mongo.Collection
	sources  *mongo.Collection
	cache    *mongo.Collection
	history  *mongo.Collection
}

// MongoConfig configures a MongoDB ledger backend.
type MongoConfig struct {
	URI      string // connection string (default "mongodb://localhost:27017")
	Database string // database name (default "depforge")
}

// NewMongoStore connects to MongoDB and prepares the ledger collections.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "depforge"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "connect to mongodb")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "ping mongodb")
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		packages: db.Collection("installed_packages"),
		sources:  db.Collection("sources"),
		cache:    db.Collection("cache"),
		history:  db.Collection("history"),
	}

	// (name, version, source) uniquely identifies a cache entry.
	_, err = s.cache.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "version", Value: 1},
			{Key: "source", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "create cache index")
	}

	return s, nil
}

// withTx runs fn inside a multi-document transaction.
func (s *MongoStore) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedger, err, "start ledger session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedger, err, "ledger transaction")
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, name string) (*InstalledPackage, error) {
	var pkg InstalledPackage
	err := s.packages.FindOne(ctx, bson.M{"_id": name}).Decode(&pkg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "get package %s", name)
	}
	return &pkg, nil
}

func (s *MongoStore) List(ctx context.Context) ([]InstalledPackage, error) {
	cur, err := s.packages.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "list packages")
	}
	var out []InstalledPackage
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "decode packages")
	}
	return out, nil
}

func (s *MongoStore) Put(ctx context.Context, pkg InstalledPackage, ev Event) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		opts := options.Replace().SetUpsert(true)
		if _, err := s.packages.ReplaceOne(sc, bson.M{"_id": pkg.Name}, pkg, opts); err != nil {
			return err
		}
		_, err := s.history.InsertOne(sc, ev)
		return err
	})
}

func (s *MongoStore) Delete(ctx context.Context, name string, ev Event) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.packages.DeleteOne(sc, bson.M{"_id": name}); err != nil {
			return err
		}
		_, err := s.history.InsertOne(sc, ev)
		return err
	})
}

func (s *MongoStore) Dependents(ctx context.Context, name string) ([]string, error) {
	// Dependency specs are stored as raw strings, so the reference check
	// happens client-side after parsing.
	pkgs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, pkg := range pkgs {
		for _, dep := range pkg.Dependencies {
			parsed, err := spec.Parse(dep)
			if err != nil {
				continue
			}
			if parsed.Name == name {
				out = append(out, pkg.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MongoStore) Sources(ctx context.Context) ([]SourceRow, error) {
	sortOpt := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.sources.Find(ctx, bson.M{}, sortOpt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "list sources")
	}
	var out []SourceRow
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "decode sources")
	}
	return out, nil
}

func (s *MongoStore) PutSource(ctx context.Context, row SourceRow) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.sources.ReplaceOne(ctx, bson.M{"_id": row.Name}, row, opts)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedger, err, "put source %s", row.Name)
	}
	return nil
}

func (s *MongoStore) CacheGet(ctx context.Context, name, version, source string) (*CacheEntry, error) {
	var entry CacheEntry
	filter := bson.M{"name": name, "version": version, "source": source}
	err := s.cache.FindOne(ctx, filter).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "get cache entry")
	}
	return &entry, nil
}

func (s *MongoStore) CachePut(ctx context.Context, entry CacheEntry) error {
	filter := bson.M{"name": entry.Name, "version": entry.Version, "source": entry.Source}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.cache.ReplaceOne(ctx, filter, entry, opts); err != nil {
		return errors.Wrap(errors.ErrCodeLedger, err, "put cache entry")
	}
	return nil
}

func (s *MongoStore) CachePurge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.cache.DeleteMany(ctx, bson.M{"fetched_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeLedger, err, "purge cache")
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) AppendEvent(ctx context.Context, ev Event) error {
	if _, err := s.history.InsertOne(ctx, ev); err != nil {
		return errors.Wrap(errors.ErrCodeLedger, err, "append event")
	}
	return nil
}

func (s *MongoStore) Events(ctx context.Context, name string) ([]Event, error) {
	filter := bson.M{}
	if name != "" {
		filter["package"] = name
	}
	sortOpt := options.Find().SetSort(bson.D{{Key: "time", Value: -1}})
	cur, err := s.history.Find(ctx, filter, sortOpt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "list events")
	}
	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "decode events")
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)

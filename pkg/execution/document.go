package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/offload"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultDocumentMaxTime bounds read-shaped document queries on the server.
const DefaultDocumentMaxTime = 30 * time.Second

// MongoCollection is the subset of *mongo.Collection the executor uses.
type MongoCollection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoSession is one short-lived client connection.
type MongoSession interface {
	Collection(database, name string) MongoCollection
	Disconnect(ctx context.Context) error
}

// MongoConnector opens a session for a connection URI.
type MongoConnector func(ctx context.Context, uri string) (MongoSession, error)

type clientSession struct {
	client *mongo.Client
}

func (s *clientSession) Collection(database, name string) MongoCollection {
	return s.client.Database(database).Collection(name)
}

func (s *clientSession) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func connectMongo(ctx context.Context, uri string) (MongoSession, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetMaxPoolSize(1))
	if err != nil {
		return nil, err
	}

	return &clientSession{client: client}, nil
}

// Document runs a single shell-like invocation against a MongoDB instance.
type Document struct {
	credentials *CredentialResolver
	truncator   *offload.Truncator
	connect     MongoConnector
	maxTime     time.Duration
	logger      *slog.Logger
}

type DocumentOption func(*Document)

// WithConnector replaces the MongoDB connector.
func WithConnector(connect MongoConnector) DocumentOption {
	return func(d *Document) {
		d.connect = connect
	}
}

func NewDocument(logger *slog.Logger, creds *CredentialResolver, truncator *offload.Truncator, opts ...DocumentOption) *Document {
	d := &Document{
		credentials: creds,
		truncator:   truncator,
		connect:     connectMongo,
		maxTime:     DefaultDocumentMaxTime,
		logger:      logger.With("module", "document_executor"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// MongoURI returns the descriptor's connection string, or builds one from its
// discrete fields. Without a username the URI carries no credentials.
func MongoURI(desc models.ConnectionDescriptor, creds models.Credentials) string {
	if desc.ConnectionString != "" {
		return desc.ConnectionString
	}

	port := desc.Port
	if port == 0 {
		port = 27017
	}

	u := &url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(desc.Host, strconv.Itoa(port)),
		Path:   "/",
	}

	if !creds.Empty() {
		u.User = url.UserPassword(creds.Username, creds.Password)

		authSource := desc.AuthSource
		if authSource == "" {
			authSource = "admin"
		}

		u.RawQuery = url.Values{"authSource": []string{authSource}}.Encode()
	}

	return u.String()
}

// Execute parses and runs invocation. Read-shaped methods return a
// *models.QueryResult, mutations a *models.DocumentMutation.
func (d *Document) Execute(ctx context.Context, desc models.ConnectionDescriptor, database, invocation string) (any, error) {
	inv, err := ParseInvocation(ctx, invocation)
	if err != nil {
		return nil, err
	}

	creds, err := d.credentials.Resolve(desc)
	if err != nil {
		return nil, err
	}

	session, err := d.connect(ctx, MongoURI(desc, creds))
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := session.Disconnect(context.WithoutCancel(ctx)); err != nil {
			d.logger.WarnContext(ctx, "Failed to disconnect", "instance", desc.Name, "error", err)
		}
	}()

	collection := session.Collection(database, inv.Collection)

	if inv.IsRead() {
		rows, err := d.read(ctx, collection, inv)
		if err != nil {
			return nil, err
		}

		return d.truncator.Apply(ctx, rows, desc.Name)
	}

	return d.mutate(ctx, collection, inv)
}

func arg(args []any, i int) any {
	if i < len(args) && args[i] != nil {
		return args[i]
	}

	return bson.D{}
}

func (d *Document) read(ctx context.Context, collection MongoCollection, inv *Invocation) ([]*models.Row, error) {
	switch inv.Method {
	case "find":
		opts := options.Find().SetMaxTime(d.maxTime)
		if len(inv.Args) > 1 && inv.Args[1] != nil {
			opts.SetProjection(inv.Args[1])
		}

		cursor, err := collection.Find(ctx, arg(inv.Args, 0), opts)
		if err != nil {
			return nil, err
		}

		return drain(ctx, cursor)
	case "findOne":
		opts := options.FindOne().SetMaxTime(d.maxTime)
		if len(inv.Args) > 1 && inv.Args[1] != nil {
			opts.SetProjection(inv.Args[1])
		}

		var doc bson.D
		if err := collection.FindOne(ctx, arg(inv.Args, 0), opts).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return []*models.Row{}, nil
			}

			return nil, err
		}

		return []*models.Row{documentRow(doc)}, nil
	case "aggregate":
		pipeline, ok := inv.Args[0].(bson.A)
		if !ok {
			return nil, &InvocationError{Message: "aggregate expects a pipeline array"}
		}

		cursor, err := collection.Aggregate(ctx, pipeline, options.Aggregate().SetMaxTime(d.maxTime))
		if err != nil {
			return nil, err
		}

		return drain(ctx, cursor)
	case "countDocuments":
		count, err := collection.CountDocuments(ctx, arg(inv.Args, 0), options.Count().SetMaxTime(d.maxTime))
		if err != nil {
			return nil, err
		}

		return []*models.Row{models.RowFromPairs("count", count)}, nil
	}

	return nil, &InvocationError{Message: fmt.Sprintf("method %s not supported on collection", inv.Method)}
}

func drain(ctx context.Context, cursor *mongo.Cursor) ([]*models.Row, error) {
	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	rows := make([]*models.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, documentRow(doc))
	}

	return rows, nil
}

func (d *Document) mutate(ctx context.Context, collection MongoCollection, inv *Invocation) (*models.DocumentMutation, error) {
	mutation := &models.DocumentMutation{Method: inv.Method, Affected: 1}

	switch inv.Method {
	case "insertOne":
		res, err := collection.InsertOne(ctx, inv.Args[0])
		if err != nil {
			return nil, err
		}

		mutation.Result = map[string]any{"acknowledged": true, "insertedId": normalize(res.InsertedID)}
	case "insertMany":
		docs, ok := inv.Args[0].(bson.A)
		if !ok {
			return nil, &InvocationError{Message: "insertMany expects an array of documents"}
		}

		res, err := collection.InsertMany(ctx, []any(docs))
		if err != nil {
			return nil, err
		}

		ids := make([]any, 0, len(res.InsertedIDs))
		for _, id := range res.InsertedIDs {
			ids = append(ids, normalize(id))
		}

		mutation.Result = map[string]any{"acknowledged": true, "insertedCount": len(ids), "insertedIds": ids}
		mutation.Affected = int64(len(ids))
	case "updateOne", "updateMany", "replaceOne":
		res, err := d.update(ctx, collection, inv)
		if err != nil {
			return nil, err
		}

		mutation.Result = map[string]any{
			"acknowledged":  true,
			"matchedCount":  res.MatchedCount,
			"modifiedCount": res.ModifiedCount,
			"upsertedCount": res.UpsertedCount,
			"upsertedId":    normalize(res.UpsertedID),
		}
		// Matched but unchanged documents count as 0.
		mutation.Affected = res.ModifiedCount
	case "deleteOne", "deleteMany":
		var (
			res *mongo.DeleteResult
			err error
		)

		if inv.Method == "deleteOne" {
			res, err = collection.DeleteOne(ctx, arg(inv.Args, 0))
		} else {
			res, err = collection.DeleteMany(ctx, arg(inv.Args, 0))
		}

		if err != nil {
			return nil, err
		}

		mutation.Result = map[string]any{"acknowledged": true, "deletedCount": res.DeletedCount}
		mutation.Affected = res.DeletedCount
	default:
		return nil, &InvocationError{Message: fmt.Sprintf("method %s not supported on collection", inv.Method)}
	}

	d.logger.InfoContext(ctx, "Document mutation completed", "method", inv.Method, "affected", mutation.Affected)

	return mutation, nil
}

func upsertRequested(args []any) bool {
	if len(args) < 3 {
		return false
	}

	opts, ok := args[2].(bson.D)
	if !ok {
		return false
	}

	for _, e := range opts {
		if e.Key == "upsert" {
			v, _ := e.Value.(bool)

			return v
		}
	}

	return false
}

func (d *Document) update(ctx context.Context, collection MongoCollection, inv *Invocation) (*mongo.UpdateResult, error) {
	upsert := upsertRequested(inv.Args)

	switch inv.Method {
	case "updateOne":
		return collection.UpdateOne(ctx, inv.Args[0], inv.Args[1], options.Update().SetUpsert(upsert))
	case "updateMany":
		return collection.UpdateMany(ctx, inv.Args[0], inv.Args[1], options.Update().SetUpsert(upsert))
	default:
		return collection.ReplaceOne(ctx, inv.Args[0], inv.Args[1], options.Replace().SetUpsert(upsert))
	}
}

func documentRow(doc bson.D) *models.Row {
	row := models.NewRow()
	for _, e := range doc {
		row.Set(e.Key, normalize(e.Value))
	}

	return row
}

// normalize converts driver types into JSON- and CSV-friendly values.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.D:
		return documentRow(val)
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}

		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}

		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Decimal128:
		return val.String()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.Regex:
		return val.String()
	case primitive.Binary:
		return val.Data
	default:
		return v
	}
}

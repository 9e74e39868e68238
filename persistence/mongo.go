package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per room in a MongoDB collection. Its change
// stream feeds Watch, so writes from other instances are seen too.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and uses database/collection for rooms.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, room *models.Room) error {
	room.Version = 1
	if _, err := s.collection.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateRoom
		}
		return err
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := s.collection.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (s *MongoStore) Save(ctx context.Context, room *models.Room) error {
	next := room.Clone()
	next.Version = room.Version + 1

	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": room.ID, "version": room.Version}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := s.collection.CountDocuments(ctx, bson.M{"_id": room.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRecordNotFound
		}
		return ErrVersionConflict
	}
	room.Version = next.Version
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, roomID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": roomID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]models.RoomSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var rooms []models.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	list := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		list = append(list, rooms[i].Summary())
	}
	return list, nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *struct {
		Version int64 `bson:"version"`
	} `bson:"fullDocument"`
}

// Watch follows the collection's change stream. It needs a replica set.
func (s *MongoStore) Watch(ctx context.Context) (<-chan Change, error) {
	stream, err := s.collection.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}

	ch := make(chan Change, 64)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				logger.Log.Warnw("undecodable change event", "error", err)
				continue
			}
			c := Change{RoomID: ev.DocumentKey.ID, Deleted: ev.OperationType == "delete"}
			if ev.FullDocument != nil {
				c.Version = ev.FullDocument.Version
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			logger.Log.Errorw("room change stream stopped", "error", err)
		}
	}()
	return ch, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

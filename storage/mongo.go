package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storybook/lib/sl"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	imagesCollection      = "images"
	generationsCollection = "generations"
	countersCollection    = "counters"
)

type MongoStorage struct {
	client      *mongo.Client
	images      *mongo.Collection
	generations *mongo.Collection
	counters    *mongo.Collection
	log         *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	m := &MongoStorage{
		client:      client,
		images:      db.Collection(imagesCollection),
		generations: db.Collection(generationsCollection),
		counters:    db.Collection(countersCollection),
		log:         log.With(sl.Module("storage.mongo")),
	}

	_, err = m.generations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		m.log.Warn("creating index", sl.Err(err))
	}

	return m, nil
}

func (m *MongoStorage) GetImageByID(ctx context.Context, id int64) (*Image, error) {
	var img Image
	err := m.images.FindOne(ctx, bson.M{"_id": id}).Decode(&img)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding image: %w", err)
	}
	return &img, nil
}

func (m *MongoStorage) GetImagesByIDs(ctx context.Context, ids []int64) ([]Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return m.findImages(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
}

func (m *MongoStorage) ListImages(ctx context.Context, limit int) ([]Image, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(listLimit(limit)))
	return m.findImages(ctx, bson.M{}, opts)
}

func (m *MongoStorage) findImages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Image, error) {
	cursor, err := m.images.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding images: %w", err)
	}
	defer cursor.Close(ctx)

	var images []Image
	if err := cursor.All(ctx, &images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	return images, nil
}

func (m *MongoStorage) AddImage(ctx context.Context, img *Image) error {
	if img.ID == 0 {
		id, err := m.nextImageID(ctx)
		if err != nil {
			return err
		}
		img.ID = id
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	if _, err := m.images.InsertOne(ctx, img); err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}
	return nil
}

func (m *MongoStorage) DeleteImage(ctx context.Context, id int64) error {
	res, err := m.images.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// nextImageID increments the images sequence kept in the counters collection.
func (m *MongoStorage) nextImageID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": imagesCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating image id: %w", err)
	}
	return counter.Seq, nil
}

func (m *MongoStorage) CreateGeneration(ctx context.Context, g *Generation) error {
	if _, err := m.generations.InsertOne(ctx, g); err != nil {
		return fmt.Errorf("inserting generation: %w", err)
	}
	return nil
}

func (m *MongoStorage) UpdateGeneration(ctx context.Context, g *Generation) error {
	g.UpdatedAt = time.Now().UTC()
	res, err := m.generations.ReplaceOne(ctx, bson.M{"_id": g.ID}, g)
	if err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) ListGenerations(ctx context.Context, limit int) ([]Generation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(listLimit(limit)))
	cursor, err := m.generations.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding generations: %w", err)
	}
	defer cursor.Close(ctx)

	var list []Generation
	if err := cursor.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decoding generations: %w", err)
	}
	return list, nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

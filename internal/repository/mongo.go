package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"maze-scores/internal/domain"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// scoreDocument is the persisted shape. Field names match the JSON API.
// Documents written by the first service versions hold numbers as strings
// and the result as a name or index, so those fields decode leniently.
type scoreDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ScoreKey       string             `bson:"scoreKey"`
	MazeID         string             `bson:"mazeId"`
	TeamID         string             `bson:"teamId"`
	GameID         string             `bson:"gameId"`
	GameRound      lenientInt         `bson:"gameRound"`
	MoveCount      lenientInt         `bson:"moveCount"`
	BacktrackCount lenientInt         `bson:"backtrackCount"`
	BonusPoints    lenientInt         `bson:"bonusPoints"`
	GameResult     lenientString      `bson:"gameResult"`
	CreatedAt      time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt      time.Time          `bson:"updatedAt,omitempty"`
}

func (d scoreDocument) toDomain() domain.Score {
	result, err := domain.ParseGameResult(string(d.GameResult))
	if err != nil {
		// keep unknown values visible rather than failing the whole read
		result = domain.GameResult(d.GameResult)
	}
	return domain.Score{
		MazeID:         d.MazeID,
		TeamID:         d.TeamID,
		GameID:         d.GameID,
		GameRound:      int(d.GameRound),
		MoveCount:      int(d.MoveCount),
		BacktrackCount: int(d.BacktrackCount),
		BonusPoints:    int(d.BonusPoints),
		GameResult:     result,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// lenientInt decodes any BSON number or a numeric string.
type lenientInt int

func (i *lenientInt) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Int32:
		*i = lenientInt(rv.Int32())
	case bsontype.Int64:
		*i = lenientInt(rv.Int64())
	case bsontype.Double:
		*i = lenientInt(rv.Double())
	case bsontype.String:
		n, err := strconv.Atoi(strings.TrimSpace(rv.StringValue()))
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", rv.StringValue(), err)
		}
		*i = lenientInt(n)
	case bsontype.Null, bsontype.Undefined:
		*i = 0
	default:
		return fmt.Errorf("cannot decode %s into an integer", t)
	}
	return nil
}

// lenientString decodes a string, or a number as its decimal text.
type lenientString string

func (s *lenientString) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*s = lenientString(rv.StringValue())
	case bsontype.Int32:
		*s = lenientString(strconv.Itoa(int(rv.Int32())))
	case bsontype.Int64:
		*s = lenientString(strconv.FormatInt(rv.Int64(), 10))
	case bsontype.Double:
		*s = lenientString(strconv.Itoa(int(rv.Double())))
	case bsontype.Null, bsontype.Undefined:
		*s = ""
	default:
		return fmt.Errorf("cannot decode %s into a string", t)
	}
	return nil
}

type MongoScoreRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger zerolog.Logger
}

func NewMongoScoreRepository(ctx context.Context, client *mongo.Client, dbName, collName string, logger zerolog.Logger) (*MongoScoreRepository, error) {
	r := &MongoScoreRepository{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
		logger: logger.With().Str("store", "mongo").Str("collection", collName).Logger(),
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoScoreRepository) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "scoreKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("scoreKey_unique"),
		},
		{Keys: bson.D{{Key: "teamId", Value: 1}}},
		{Keys: bson.D{{Key: "mazeId", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error().Err(err).Msg("failed to create indexes")
		return storageErr("create indexes", err)
	}
	return nil
}

func (r *MongoScoreRepository) FindByKey(ctx context.Context, scoreKey string) (*domain.Score, error) {
	var doc scoreDocument
	err := r.coll.FindOne(ctx, bson.M{"scoreKey": scoreKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find score", err)
	}

	score := doc.toDomain()
	return &score, nil
}

func (r *MongoScoreRepository) FindAll(ctx context.Context, filter Filter) ([]domain.Score, error) {
	query := bson.M{}
	if filter.ScoreKey != "" {
		query["scoreKey"] = filter.ScoreKey
	}
	if filter.TeamID != "" {
		query["teamId"] = filter.TeamID
	}
	if filter.MazeID != "" {
		query["mazeId"] = filter.MazeID
	}

	cursor, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "scoreKey", Value: 1}}))
	if err != nil {
		return nil, storageErr("list scores", err)
	}

	var docs []scoreDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageErr("decode scores", err)
	}

	scores := make([]domain.Score, len(docs))
	for i, d := range docs {
		scores[i] = d.toDomain()
	}
	return scores, nil
}

// Upsert writes the score with a single upserting update keyed on scoreKey.
func (r *MongoScoreRepository) Upsert(ctx context.Context, score *domain.Score) (UpsertResult, error) {
	key := score.ScoreKey()
	now := time.Now().UTC().Truncate(time.Millisecond)

	update := bson.M{
		"$set": bson.M{
			"scoreKey":       key,
			"mazeId":         score.MazeID,
			"teamId":         score.TeamID,
			"gameId":         score.GameID,
			"gameRound":      score.GameRound,
			"moveCount":      score.MoveCount,
			"backtrackCount": score.BacktrackCount,
			"bonusPoints":    score.BonusPoints,
			"gameResult":     string(score.GameResult),
			"updatedAt":      now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.Update().SetUpsert(true)

	res, err := r.coll.UpdateOne(ctx, bson.M{"scoreKey": key}, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced to insert; the loser now matches the winner's document
		r.logger.Debug().Str("score_key", key).Msg("retrying upsert after duplicate key")
		res, err = r.coll.UpdateOne(ctx, bson.M{"scoreKey": key}, update, opts)
	}
	if err != nil {
		return UpsertResult{}, storageErr("upsert score", err)
	}

	inserted := res.UpsertedCount > 0
	if inserted {
		score.CreatedAt = now
	}
	score.UpdatedAt = now

	r.logger.Debug().Str("score_key", key).Bool("inserted", inserted).Msg("score upserted")
	return UpsertResult{Inserted: inserted}, nil
}

func (r *MongoScoreRepository) DeleteByKey(ctx context.Context, scoreKey string) (int64, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"scoreKey": scoreKey})
	if err != nil {
		return 0, storageErr("delete score", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoScoreRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (r *MongoScoreRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

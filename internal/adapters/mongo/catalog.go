package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/roomstay/booking-service/internal/booking"
	"github.com/roomstay/booking-service/internal/domain"
	"github.com/roomstay/booking-service/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository reads room and user documents for existence checks and
// list enrichment. The booking core never writes these collections; room
// CRUD and account management live elsewhere.
type CatalogRepository struct {
	rooms  *mongo.Collection
	users  *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		rooms:  db.Collection("rooms"),
		users:  db.Collection("users"),
		logger: logger,
	}
}

type roomDoc struct {
	ID         uuid.UUID `bson:"_id"`
	Title      string    `bson:"title"`
	Rent       float64   `bson:"rent"`
	Facilities []string  `bson:"facilities"`
	Picture    string    `bson:"picture"`
	Details    string    `bson:"details"`
	Location   string    `bson:"location"`
	CreatedAt  time.Time `bson:"created_at"`
}

type userDoc struct {
	ID    uuid.UUID `bson:"_id"`
	Name  string    `bson:"name"`
	Email string    `bson:"email"`
	Photo string    `bson:"photo"`
}

func (c *CatalogRepository) GetRoom(ctx context.Context, id uuid.UUID) (*booking.Room, error) {
	var doc roomDoc
	err := c.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.Wrap(domain.ErrNotFound, "room")
	}
	if err != nil {
		return nil, errors.Mark(err, domain.ErrStoreUnavailable)
	}
	return &booking.Room{
		ID:         doc.ID,
		Title:      doc.Title,
		Rent:       doc.Rent,
		Facilities: doc.Facilities,
		Picture:    doc.Picture,
		Details:    doc.Details,
		Location:   doc.Location,
	}, nil
}

func (c *CatalogRepository) GetUser(ctx context.Context, id uuid.UUID) (*booking.User, error) {
	var doc userDoc
	err := c.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.Wrap(domain.ErrNotFound, "user")
	}
	if err != nil {
		return nil, errors.Mark(err, domain.ErrStoreUnavailable)
	}
	return &booking.User{
		ID:    doc.ID,
		Name:  doc.Name,
		Email: doc.Email,
		Photo: doc.Photo,
	}, nil
}

// CreateRoom and CreateUser exist for seeding and tests.
func (c *CatalogRepository) CreateRoom(ctx context.Context, room booking.Room) error {
	doc := roomDoc{
		ID:         room.ID,
		Title:      room.Title,
		Rent:       room.Rent,
		Facilities: room.Facilities,
		Picture:    room.Picture,
		Details:    room.Details,
		Location:   room.Location,
		CreatedAt:  time.Now(),
	}
	_, err := c.rooms.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create room")
		return err
	}
	return nil
}

func (c *CatalogRepository) CreateUser(ctx context.Context, user booking.User) error {
	doc := userDoc{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Photo: user.Photo,
	}
	_, err := c.users.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create user")
		return err
	}
	return nil
}

package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

const (
	usersCollection       = "users"
	roomsCollection       = "rooms"
	membershipsCollection = "memberships"
	messagesCollection    = "messages"
)

// MongoDB stores the same records as PostgresDB in four collections.
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

type membershipDoc struct {
	ID     string `bson:"_id"`
	UserID string `bson:"user_id"`
	RoomID string `bson:"room_id"`
}

type messageDoc struct {
	ID        string    `bson:"_id"`
	RoomID    string    `bson:"room_id"`
	SenderID  string    `bson:"sender_id"`
	Body      string    `bson:"body"`
	Image     string    `bson:"image,omitempty"`
	ImageKey  string    `bson:"image_key,omitempty"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *messageDoc) toMessage(sender models.Identity) *models.Message {
	return &models.Message{
		ID:        d.ID,
		RoomID:    d.RoomID,
		Body:      d.Body,
		Image:     d.Image,
		ImageKey:  d.ImageKey,
		Status:    models.MessageStatus(d.Status),
		Sender:    sender,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func NewMongoDB(ctx context.Context, uri, database string) (*MongoDB, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Connected to mongo database %s", database)
	return &MongoDB{client: client, db: client.Database(database)}, nil
}

// Migrate creates the indexes the repositories rely on.
func (m *MongoDB) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		roomsCollection: {
			{
				Keys:    bson.D{{Key: "participants", Value: 1}},
				Options: options.Index().SetPartialFilterExpression(bson.M{"kind": models.RoomKindDirect}),
			},
		},
		membershipsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "room_id", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, idx := range indexes {
		if _, err := m.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// User Repository Implementation
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	if err := m.db.Collection(usersCollection).FindOne(ctx, bson.M{"email": email}).Decode(user); err != nil {
		return nil, mongoNotFound(err)
	}
	return user, nil
}

func (m *MongoDB) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	user := *u
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()

	if _, err := m.db.Collection(usersCollection).InsertOne(ctx, &user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("email %q: %w", u.Email, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (m *MongoDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	if err := m.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(user); err != nil {
		return nil, mongoNotFound(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (m *MongoDB) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

// Room Repository Implementation
func (m *MongoDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID string) (*models.Room, error) {
	rooms := m.db.Collection(roomsCollection)

	err := rooms.FindOne(ctx, bson.M{"kind": models.RoomKindChannel, "name": req.Name}).Err()
	if err == nil {
		return nil, fmt.Errorf("failed to create room: name %q already taken", req.Name)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Kind:      models.RoomKindChannel,
		IsPublic:  req.IsPublic,
		OwnerID:   ownerID,
		Status:    models.RoomStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := rooms.InsertOne(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if err := m.AddMembership(ctx, ownerID, room.ID); err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}
	return room, nil
}

func (m *MongoDB) GetOrCreateDirectRoom(ctx context.Context, userA, userB string) (*models.Room, error) {
	a, b := orderedPair(userA, userB)
	filter := bson.M{"kind": models.RoomKindDirect, "participants": bson.A{a, b}}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":        uuid.NewString(),
		"is_public":  false,
		"status":     models.RoomStatusActive,
		"created_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	room := &models.Room{}
	if err := m.db.Collection(roomsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(room); err != nil {
		return nil, fmt.Errorf("failed to create direct room: %w", err)
	}
	return room, nil
}

func (m *MongoDB) GetRoomByID(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	if err := m.db.Collection(roomsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(room); err != nil {
		return nil, mongoNotFound(err)
	}
	return room, nil
}

func (m *MongoDB) ListUserRooms(ctx context.Context, userID string) ([]*models.Room, error) {
	joined, err := m.roomIDsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"kind": models.RoomKindChannel, "is_public": true},
		bson.M{"kind": models.RoomKindChannel, "_id": bson.M{"$in": joined}},
		bson.M{"kind": models.RoomKindDirect, "participants": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := m.db.Collection(roomsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var rooms []*models.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (m *MongoDB) roomIDsOf(ctx context.Context, userID string) ([]string, error) {
	cursor, err := m.db.Collection(membershipsCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	var docs []membershipDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.RoomID)
	}
	return ids, nil
}

// Message Repository Implementation
func (m *MongoDB) CreateMessage(ctx context.Context, in *models.NewMessage) (*models.Message, error) {
	// Resolve the sender first so a failed lookup never leaves an orphan message.
	sender, err := m.GetUserByID(ctx, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: sender: %w", err)
	}

	now := time.Now().UTC()
	doc := &messageDoc{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Body:      in.Body,
		Image:     in.Image,
		ImageKey:  in.ImageKey,
		Status:    string(models.MessageStatusUnread),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := m.db.Collection(messagesCollection).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return doc.toMessage(sender.Identity()), nil
}

func (m *MongoDB) GetLastMessage(ctx context.Context, roomID string) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	doc := &messageDoc{}
	if err := m.db.Collection(messagesCollection).FindOne(ctx, bson.M{"room_id": roomID}, opts).Decode(doc); err != nil {
		return nil, mongoNotFound(err)
	}
	sender, err := m.GetUserByID(ctx, doc.SenderID)
	if err != nil {
		return nil, err
	}
	return doc.toMessage(sender.Identity()), nil
}

// Membership Repository Implementation
func membershipID(userID, roomID string) string {
	return userID + "|" + roomID
}

func (m *MongoDB) AddMembership(ctx context.Context, userID, roomID string) error {
	doc := membershipDoc{ID: membershipID(userID, roomID), UserID: userID, RoomID: roomID}
	opts := options.Replace().SetUpsert(true)
	_, err := m.db.Collection(membershipsCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}

func (m *MongoDB) RemoveMembership(ctx context.Context, userID, roomID string) error {
	_, err := m.db.Collection(membershipsCollection).DeleteOne(ctx, bson.M{"_id": membershipID(userID, roomID)})
	return err
}

func (m *MongoDB) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	n, err := m.db.Collection(membershipsCollection).CountDocuments(ctx, bson.M{"_id": membershipID(userID, roomID)})
	return n > 0, err
}

func (m *MongoDB) GetRoomMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	cursor, err := m.db.Collection(membershipsCollection).Find(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return nil, err
	}
	var docs []membershipDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.UserID)
	}
	users, err := m.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	members := make([]*models.Member, 0, len(users))
	for _, u := range users {
		members = append(members, &models.Member{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

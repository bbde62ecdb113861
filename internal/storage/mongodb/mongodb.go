package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/storage"
)

type Storage struct {
	client    *mongo.Client
	database  *mongo.Database
	users     *mongo.Collection
	tokens    *mongo.Collection
	incidents *mongo.Collection
	watchlist *mongo.Collection
}

type userDoc struct {
	ID        string     `bson:"_id"`
	Username  string     `bson:"username"`
	Email     string     `bson:"email"`
	PassHash  []byte     `bson:"pass_hash"`
	Roles     []string   `bson:"roles"`
	CreatedAt time.Time  `bson:"created_at"`
	LastLogin *time.Time `bson:"last_login,omitempty"`
}

type refreshTokenDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	TokenHash  string    `bson:"token_hash"`
	IssuedAt   time.Time `bson:"issued_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
	Revoked    bool      `bson:"revoked"`
	ReplacedBy string    `bson:"replaced_by,omitempty"`
	IP         string    `bson:"ip,omitempty"`
	UserAgent  string    `bson:"user_agent,omitempty"`
}

type evidenceDoc struct {
	Email            string `bson:"email,omitempty"`
	PasswordHash     string `bson:"password_hash,omitempty"`
	PasswordRedacted string `bson:"password_redacted,omitempty"`
	Phone            string `bson:"phone,omitempty"`
	Username         string `bson:"username,omitempty"`
	Details          string `bson:"details,omitempty"`
}

type incidentDoc struct {
	ID                  string         `bson:"_id"`
	Source              string         `bson:"source"`
	SourceID            string         `bson:"source_id,omitempty"`
	Type                string         `bson:"type,omitempty"`
	Evidence            evidenceDoc    `bson:"evidence"`
	DiscoveredAt        *time.Time     `bson:"discovered_at,omitempty"`
	FirstSeen           time.Time      `bson:"first_seen"`
	LastSeen            time.Time      `bson:"last_seen"`
	RiskScore           int            `bson:"risk_score"`
	OccurrenceCount     int            `bson:"occurrence_count"`
	Fingerprint         string         `bson:"fingerprint"`
	MatchedWatchlistIDs []string       `bson:"matched_watchlist_ids,omitempty"`
	LinkedUserIDs       []string       `bson:"linked_user_ids,omitempty"`
	Meta                map[string]any `bson:"meta,omitempty"`
	CreatedAt           time.Time      `bson:"created_at"`
}

type watchlistDoc struct {
	ID            string     `bson:"_id"`
	UserID        string     `bson:"user_id"`
	Type          string     `bson:"type"`
	Value         string     `bson:"value"`
	Active        bool       `bson:"active"`
	CreatedAt     time.Time  `bson:"created_at"`
	LastCheckedAt *time.Time `bson:"last_checked_at,omitempty"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:    client,
		database:  db,
		users:     db.Collection("users"),
		tokens:    db.Collection("refresh_tokens"),
		incidents: db.Collection("breach_incidents"),
		watchlist: db.Collection("watchlist"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users: unique username and email
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	// refresh_tokens: unique hash, user lookup, TTL on expiry
	_, err = s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens indexes: %w", err)
	}

	// breach_incidents: unique fingerprint, evidence email and risk lookups
	_, err = s.incidents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "evidence.email", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "risk_score", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("breach_incidents indexes: %w", err)
	}

	// watchlist: owner and (type, value) lookups
	_, err = s.watchlist.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "value", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("watchlist indexes: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --- users ---

// SaveUser inserts a new user. Tripping a unique index maps to the taken
// sentinel for whichever field collided.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongodb.SaveUser"

	doc := userDoc{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		PassHash:  user.PassHash,
		Roles:     rolesToStrings(user.Roles),
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}

	_, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if dup, field := duplicateKeyField(err); dup {
			switch field {
			case "username":
				return fmt.Errorf("%s: %w", op, storage.ErrUsernameTaken)
			case "email":
				return fmt.Errorf("%s: %w", op, storage.ErrEmailTaken)
			default:
				return fmt.Errorf("%s: %w", op, storage.ErrUserExists)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	const op = "storage.mongodb.UpdateLastLogin"

	_, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_login", Value: at}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongodb.UserByUsername", bson.D{{Key: "username", Value: username}})
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongodb.UserByEmail", bson.D{{Key: "email", Value: email}})
}

func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, "storage.mongodb.UserByID", bson.D{{Key: "_id", Value: userID}})
}

func (s *Storage) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.userExists(ctx, "storage.mongodb.ExistsByUsername", bson.D{{Key: "username", Value: username}})
}

func (s *Storage) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.userExists(ctx, "storage.mongodb.ExistsByEmail", bson.D{{Key: "email", Value: email}})
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return userFromDoc(doc), nil
}

func (s *Storage) userExists(ctx context.Context, op string, filter bson.D) (bool, error) {
	count, err := s.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return count > 0, nil
}

// --- refresh tokens ---

func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.mongodb.SaveRefreshToken"

	doc := refreshTokenDoc{
		ID:         token.ID,
		UserID:     token.UserID,
		TokenHash:  token.TokenHash,
		IssuedAt:   token.IssuedAt,
		ExpiresAt:  token.ExpiresAt,
		Revoked:    token.Revoked,
		ReplacedBy: token.ReplacedBy,
		IP:         token.IP,
		UserAgent:  token.UserAgent,
	}

	_, err := s.tokens.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	return s.findToken(ctx, "storage.mongodb.RefreshTokenByHash", bson.D{{Key: "token_hash", Value: tokenHash}})
}

func (s *Storage) RefreshTokenByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	return s.findToken(ctx, "storage.mongodb.RefreshTokenByID", bson.D{{Key: "_id", Value: id}})
}

func (s *Storage) findToken(ctx context.Context, op string, filter bson.D) (*models.RefreshToken, error) {
	var doc refreshTokenDoc
	err := s.tokens.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokenFromDoc(doc), nil
}

func (s *Storage) RefreshTokensByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	const op = "storage.mongodb.RefreshTokensByUser"

	cursor, err := s.tokens.Find(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []refreshTokenDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens := make([]models.RefreshToken, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, *tokenFromDoc(d))
	}
	return tokens, nil
}

// MarkRevoked flags a single token revoked, recording its successor when the
// revocation came from a rotation.
func (s *Storage) MarkRevoked(ctx context.Context, id string, replacedBy string) error {
	const op = "storage.mongodb.MarkRevoked"

	set := bson.D{{Key: "revoked", Value: true}}
	if replacedBy != "" {
		set = append(set, bson.E{Key: "replaced_by", Value: replacedBy})
	}

	res, err := s.tokens.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}
	return nil
}

func (s *Storage) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "storage.mongodb.RevokeAllForUser"

	res, err := s.tokens.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "revoked", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked", Value: true}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.ModifiedCount, nil
}

// --- breach incidents ---

func (s *Storage) InsertIncident(ctx context.Context, inc *models.BreachIncident) error {
	const op = "storage.mongodb.InsertIncident"

	_, err := s.incidents.InsertOne(ctx, incidentToDoc(inc))
	if err != nil {
		if dup, _ := duplicateKeyField(err); dup {
			return fmt.Errorf("%s: %w", op, storage.ErrIncidentExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) IncidentByFingerprint(ctx context.Context, fingerprint string) (*models.BreachIncident, error) {
	const op = "storage.mongodb.IncidentByFingerprint"

	var doc incidentDoc
	err := s.incidents.FindOne(ctx, bson.D{{Key: "fingerprint", Value: fingerprint}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return incidentFromDoc(doc), nil
}

// IncrementOccurrence atomically bumps the occurrence counter and refreshes
// last_seen for a known fingerprint.
func (s *Storage) IncrementOccurrence(ctx context.Context, fingerprint string, seenAt time.Time) (*models.BreachIncident, error) {
	const op = "storage.mongodb.IncrementOccurrence"

	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "occurrence_count", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "last_seen", Value: seenAt}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc incidentDoc
	err := s.incidents.FindOneAndUpdate(ctx,
		bson.D{{Key: "fingerprint", Value: fingerprint}}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return incidentFromDoc(doc), nil
}

func (s *Storage) IncidentsByEmail(ctx context.Context, email string) ([]models.BreachIncident, error) {
	return s.findIncidents(ctx, "storage.mongodb.IncidentsByEmail",
		bson.D{{Key: "evidence.email", Value: email}})
}

func (s *Storage) IncidentsByMinRisk(ctx context.Context, minRisk int) ([]models.BreachIncident, error) {
	return s.findIncidents(ctx, "storage.mongodb.IncidentsByMinRisk",
		bson.D{{Key: "risk_score", Value: bson.D{{Key: "$gte", Value: minRisk}}}})
}

func (s *Storage) findIncidents(ctx context.Context, op string, filter bson.D) ([]models.BreachIncident, error) {
	cursor, err := s.incidents.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []incidentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	incs := make([]models.BreachIncident, 0, len(docs))
	for _, d := range docs {
		incs = append(incs, *incidentFromDoc(d))
	}
	return incs, nil
}

// --- watchlist ---

func (s *Storage) SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	const op = "storage.mongodb.SaveWatchlistItem"

	doc := watchlistDoc{
		ID:            item.ID,
		UserID:        item.UserID,
		Type:          item.Type,
		Value:         item.Value,
		Active:        item.Active,
		CreatedAt:     item.CreatedAt,
		LastCheckedAt: item.LastCheckedAt,
	}

	_, err := s.watchlist.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) WatchlistItemByID(ctx context.Context, id string) (*models.WatchlistItem, error) {
	const op = "storage.mongodb.WatchlistItemByID"

	var doc watchlistDoc
	err := s.watchlist.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrWatchlistNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return watchlistFromDoc(doc), nil
}

func (s *Storage) WatchlistItemsByUser(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	return s.findWatchlist(ctx, "storage.mongodb.WatchlistItemsByUser",
		bson.D{{Key: "user_id", Value: userID}})
}

func (s *Storage) WatchlistItemsByTypeValue(ctx context.Context, itemType, value string) ([]models.WatchlistItem, error) {
	return s.findWatchlist(ctx, "storage.mongodb.WatchlistItemsByTypeValue",
		bson.D{{Key: "type", Value: itemType}, {Key: "value", Value: value}})
}

func (s *Storage) findWatchlist(ctx context.Context, op string, filter bson.D) ([]models.WatchlistItem, error) {
	cursor, err := s.watchlist.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []watchlistDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items := make([]models.WatchlistItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, *watchlistFromDoc(d))
	}
	return items, nil
}

func (s *Storage) DeleteWatchlistItem(ctx context.Context, id string) error {
	const op = "storage.mongodb.DeleteWatchlistItem"

	res, err := s.watchlist.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrWatchlistNotFound)
	}
	return nil
}

func (s *Storage) SetWatchlistLastChecked(ctx context.Context, id string, at time.Time) error {
	const op = "storage.mongodb.SetWatchlistLastChecked"

	_, err := s.watchlist.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_checked_at", Value: at}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// --- helpers ---

// duplicateKeyField reports whether err is a MongoDB duplicate key error
// (code 11000) and, when possible, which indexed field collided.
func duplicateKeyField(err error) (bool, string) {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false, ""
	}
	for _, e := range we.WriteErrors {
		if e.Code != 11000 {
			continue
		}
		for _, field := range []string{"username", "email", "token_hash", "fingerprint"} {
			if strings.Contains(e.Message, field) {
				return true, field
			}
		}
		return true, ""
	}
	return false, ""
}

func userFromDoc(doc userDoc) *models.User {
	roles := make([]models.Role, 0, len(doc.Roles))
	for _, r := range doc.Roles {
		roles = append(roles, models.ParseRole(r))
	}
	return &models.User{
		ID:        doc.ID,
		Username:  doc.Username,
		Email:     doc.Email,
		PassHash:  doc.PassHash,
		Roles:     roles,
		CreatedAt: doc.CreatedAt,
		LastLogin: doc.LastLogin,
	}
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func tokenFromDoc(doc refreshTokenDoc) *models.RefreshToken {
	return &models.RefreshToken{
		ID:         doc.ID,
		UserID:     doc.UserID,
		TokenHash:  doc.TokenHash,
		IssuedAt:   doc.IssuedAt,
		ExpiresAt:  doc.ExpiresAt,
		Revoked:    doc.Revoked,
		ReplacedBy: doc.ReplacedBy,
		IP:         doc.IP,
		UserAgent:  doc.UserAgent,
	}
}

func incidentToDoc(inc *models.BreachIncident) incidentDoc {
	return incidentDoc{
		ID:       inc.ID,
		Source:   inc.Source,
		SourceID: inc.SourceID,
		Type:     inc.Type,
		Evidence: evidenceDoc{
			Email:            inc.Evidence.Email,
			PasswordHash:     inc.Evidence.PasswordHash,
			PasswordRedacted: inc.Evidence.PasswordRedacted,
			Phone:            inc.Evidence.Phone,
			Username:         inc.Evidence.Username,
			Details:          inc.Evidence.Details,
		},
		DiscoveredAt:        inc.DiscoveredAt,
		FirstSeen:           inc.FirstSeen,
		LastSeen:            inc.LastSeen,
		RiskScore:           inc.RiskScore,
		OccurrenceCount:     inc.OccurrenceCount,
		Fingerprint:         inc.Fingerprint,
		MatchedWatchlistIDs: inc.MatchedWatchlistIDs,
		LinkedUserIDs:       inc.LinkedUserIDs,
		Meta:                inc.Meta,
		CreatedAt:           inc.CreatedAt,
	}
}

func incidentFromDoc(doc incidentDoc) *models.BreachIncident {
	return &models.BreachIncident{
		ID:       doc.ID,
		Source:   doc.Source,
		SourceID: doc.SourceID,
		Type:     doc.Type,
		Evidence: models.Evidence{
			Email:            doc.Evidence.Email,
			PasswordHash:     doc.Evidence.PasswordHash,
			PasswordRedacted: doc.Evidence.PasswordRedacted,
			Phone:            doc.Evidence.Phone,
			Username:         doc.Evidence.Username,
			Details:          doc.Evidence.Details,
		},
		DiscoveredAt:        doc.DiscoveredAt,
		FirstSeen:           doc.FirstSeen,
		LastSeen:            doc.LastSeen,
		RiskScore:           doc.RiskScore,
		OccurrenceCount:     doc.OccurrenceCount,
		Fingerprint:         doc.Fingerprint,
		MatchedWatchlistIDs: doc.MatchedWatchlistIDs,
		LinkedUserIDs:       doc.LinkedUserIDs,
		Meta:                doc.Meta,
		CreatedAt:           doc.CreatedAt,
	}
}

func watchlistFromDoc(doc watchlistDoc) *models.WatchlistItem {
	return &models.WatchlistItem{
		ID:            doc.ID,
		UserID:        doc.UserID,
		Type:          doc.Type,
		Value:         doc.Value,
		Active:        doc.Active,
		CreatedAt:     doc.CreatedAt,
		LastCheckedAt: doc.LastCheckedAt,
	}
}

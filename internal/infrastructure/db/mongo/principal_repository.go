package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

const collectionPrincipals = "principals"

// PrincipalRepository implements ports.PrincipalRepository using MongoDB.
type PrincipalRepository struct {
	col *mongo.Collection
	now func() time.Time
}

var _ ports.PrincipalRepository = (*PrincipalRepository)(nil)

// NewPrincipalRepository returns a repository over the "principals"
// collection of db.
func NewPrincipalRepository(db *mongo.Database) *PrincipalRepository {
	return &PrincipalRepository{col: db.Collection(collectionPrincipals), now: time.Now}
}

type grantDoc struct {
	Hash      string    `bson:"hash"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type principalDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Email            string             `bson:"email"`
	Username         string             `bson:"username,omitempty"`
	FullName         string             `bson:"full_name,omitempty"`
	PasswordHash     string             `bson:"password_hash"`
	EmailVerified    bool               `bson:"is_email_verified"`
	RefreshTokenHash string             `bson:"refresh_token_hash,omitempty"`
	Verification     *grantDoc          `bson:"email_verification,omitempty"`
	PasswordReset    *grantDoc          `bson:"password_reset,omitempty"`
	CreatedAt        time.Time          `bson:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

// grantPath maps a token field to the document path of its grant.
func grantPath(field domain.TokenField) (string, error) {
	switch field {
	case domain.TokenFieldEmailVerification:
		return "email_verification", nil
	case domain.TokenFieldPasswordReset:
		return "password_reset", nil
	default:
		return "", fmt.Errorf("%w: unknown token field %q", domain.ErrValidation, field)
	}
}

func toGrantDoc(g *domain.Grant) *grantDoc {
	if g == nil {
		return nil
	}
	return &grantDoc{Hash: g.Hash, ExpiresAt: g.ExpiresAt.UTC()}
}

func (g *grantDoc) toDomain() *domain.Grant {
	if g == nil {
		return nil
	}
	return &domain.Grant{Hash: g.Hash, ExpiresAt: g.ExpiresAt.UTC()}
}

func (d *principalDoc) toDomain() *domain.Principal {
	return &domain.Principal{
		ID:               d.ID.Hex(),
		Email:            d.Email,
		Username:         d.Username,
		FullName:         d.FullName,
		PasswordHash:     d.PasswordHash,
		EmailVerified:    d.EmailVerified,
		RefreshTokenHash: d.RefreshTokenHash,
		Verification:     d.Verification.toDomain(),
		PasswordReset:    d.PasswordReset.toDomain(),
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func (r *PrincipalRepository) findOne(ctx context.Context, filter bson.M) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc principalDoc
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return doc.toDomain(), nil
}

// FindPrincipalByEmailOrUsername matches either key; empty keys are skipped.
func (r *PrincipalRepository) FindPrincipalByEmailOrUsername(ctx context.Context, email, username string) (*domain.Principal, error) {
	var or bson.A
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if len(or) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"$or": or})
}

// FindPrincipalByID loads a principal by its hex ObjectID. A malformed id is
// domain.ErrNotFound.
func (r *PrincipalRepository) FindPrincipalByID(ctx context.Context, id string) (*domain.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindPrincipalByToken looks up the principal whose grant under field holds
// hashed and is still live at now.
func (r *PrincipalRepository) FindPrincipalByToken(ctx context.Context, field domain.TokenField, hashed string, now time.Time) (*domain.Principal, error) {
	if hashed == "" {
		return nil, domain.ErrNotFound
	}
	path, err := grantPath(field)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{
		path + ".hash":       hashed,
		path + ".expires_at": bson.M{"$gt": now.UTC()},
	})
}

// CreatePrincipal inserts p; the unique indexes turn duplicates into
// domain.ErrConflict.
func (r *PrincipalRepository) CreatePrincipal(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC()
	doc := principalDoc{
		Email:            p.Email,
		Username:         p.Username,
		FullName:         p.FullName,
		PasswordHash:     p.PasswordHash,
		EmailVerified:    p.EmailVerified,
		RefreshTokenHash: p.RefreshTokenHash,
		Verification:     toGrantDoc(p.Verification),
		PasswordReset:    toGrantDoc(p.PasswordReset),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toDomain(), nil
}

// UpdatePrincipal applies u in a single conditional findAndModify.
func (r *PrincipalRepository) UpdatePrincipal(ctx context.Context, id string, u ports.PrincipalUpdate) (*domain.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	filter, update, err := buildUpdate(oid, u, r.now().UTC())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc principalDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update principal: %w", err)
	}
	if len(filter) == 1 {
		return nil, domain.ErrNotFound
	}

	// The filter carried preconditions: tell a vanished principal apart from
	// a failed condition.
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("update principal: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}
	return nil, ports.ErrPreconditionFailed
}

// buildUpdate translates u into a filter and update document. The filter
// always has _id first; any further keys are preconditions.
func buildUpdate(oid primitive.ObjectID, u ports.PrincipalUpdate, now time.Time) (bson.M, bson.M, error) {
	filter := bson.M{"_id": oid}
	set := bson.M{"updated_at": now}
	unset := bson.M{}

	if u.ExpectRefreshTokenHash != nil {
		if *u.ExpectRefreshTokenHash == "" {
			filter["refresh_token_hash"] = bson.M{"$in": bson.A{nil, ""}}
		} else {
			filter["refresh_token_hash"] = *u.ExpectRefreshTokenHash
		}
	}
	if u.ExpectGrant != nil {
		path, err := grantPath(u.ExpectGrant.Field)
		if err != nil {
			return nil, nil, err
		}
		filter[path+".hash"] = u.ExpectGrant.Hash
	}

	if u.PasswordHash != nil {
		set["password_hash"] = *u.PasswordHash
	}
	if u.MarkEmailVerified {
		set["is_email_verified"] = true
	}
	if u.RefreshTokenHash != nil {
		if *u.RefreshTokenHash == "" {
			unset["refresh_token_hash"] = ""
		} else {
			set["refresh_token_hash"] = *u.RefreshTokenHash
		}
	}
	switch {
	case u.SetVerification != nil:
		set["email_verification"] = toGrantDoc(u.SetVerification)
	case u.ClearVerification:
		unset["email_verification"] = ""
	}
	switch {
	case u.SetPasswordReset != nil:
		set["password_reset"] = toGrantDoc(u.SetPasswordReset)
	case u.ClearPasswordReset:
		unset["password_reset"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return filter, update, nil
}

// EnsureIndexes creates the unique and lookup indexes on the principals collection.
func (r *PrincipalRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "email_verification.hash", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "password_reset.hash", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("ensure principal indexes: %w", err)
	}
	return nil
}

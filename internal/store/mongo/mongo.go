// Package mongo keeps the collections in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"startup-spark/internal/models"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

type Store struct {
	client *mongo.Client
	log    *zap.Logger

	cUsers       *mongo.Collection
	cTeams       *mongo.Collection
	cPayments    *mongo.Collection
	cRequests    *mongo.Collection
	cSubmissions *mongo.Collection
	cSponsors    *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Connect dials uri, pings the server and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string, log *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := newStore(client, client.Database(database), log)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database, log *zap.Logger) *Store {
	return &Store{
		client:       client,
		log:          log,
		cUsers:       db.Collection(store.CollectionUsers),
		cTeams:       db.Collection(store.CollectionTeams),
		cPayments:    db.Collection(store.CollectionPayments),
		cRequests:    db.Collection(store.CollectionPaymentRequests),
		cSubmissions: db.Collection(store.CollectionSubmissions),
		cSponsors:    db.Collection(store.CollectionSponsors),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.cTeams: {
			{Keys: bson.D{{Key: "registrationId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "members.email", Value: 1}}},
			{Keys: bson.D{{Key: "paymentStatus", Value: 1}}},
		},
		s.cPayments: {
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "teamId", Value: 1}}},
		},
		s.cSubmissions: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for c, idx := range indexes {
		if _, err := c.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", c.Name(), err)
		}
		s.log.Debug("indexes ready", zap.String("collection", c.Name()))
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter any) (*T, error) {
	var out T
	err := c.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(context.Background())

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func oldestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}

// ---------- Teams ----------

func (s *Store) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	return findOne[models.Team](ctx, s.cTeams, bson.M{"_id": teamID})
}

func (s *Store) GetTeamByRegistrationID(ctx context.Context, registrationID string) (*models.Team, error) {
	return findOne[models.Team](ctx, s.cTeams, bson.M{"registrationId": registrationID})
}

func (s *Store) SaveTeam(ctx context.Context, team *models.Team) error {
	_, err := s.cTeams.ReplaceOne(ctx, bson.M{"_id": team.TeamID}, team, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateTeamPayment(ctx context.Context, teamID string, upd models.TeamPaymentUpdate) error {
	set := bson.M{"paymentStatus": upd.Status}
	if upd.InitiatedAt != nil {
		set["paymentInitiatedAt"] = *upd.InitiatedAt
	}
	if upd.CompletedAt != nil {
		set["paymentCompletedAt"] = *upd.CompletedAt
	}
	if upd.UpdatedAt != nil {
		set["paymentUpdatedAt"] = *upd.UpdatedAt
	}
	res, err := s.cTeams.UpdateOne(ctx, bson.M{"_id": teamID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTeams(ctx context.Context, filter store.TeamFilter) ([]models.Team, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["paymentStatus"] = filter.Status
	}
	return findAll[models.Team](ctx, s.cTeams, q, oldestFirst())
}

func (s *Store) FindTeamsByMemberEmail(ctx context.Context, email string) ([]models.Team, error) {
	return findAll[models.Team](ctx, s.cTeams, bson.M{"members.email": util.NormalizeEmail(email)}, oldestFirst())
}

// ---------- Payments ----------

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return findOne[models.Payment](ctx, s.cPayments, bson.M{"_id": paymentID})
}

// UpsertPayment writes p, keeping the original createdAt and any team link
// already on the stored document.
func (s *Store) UpsertPayment(ctx context.Context, p *models.Payment) error {
	set := bson.M{
		"email":     util.NormalizeEmail(p.Email),
		"buyerName": p.BuyerName,
		"amount":    p.Amount,
		"status":    p.Status,
		"updatedAt": p.UpdatedAt,
	}
	if p.GatewayPaymentID != "" {
		set["payment_id"] = p.GatewayPaymentID
	}
	if p.PaymentRequestID != "" {
		set["paymentRequestId"] = p.PaymentRequestID
	}
	if p.TeamID != "" {
		set["teamId"] = p.TeamID
	}
	_, err := s.cPayments.UpdateOne(ctx,
		bson.M{"_id": p.PaymentID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"createdAt": p.CreatedAt}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) FindPaidPaymentsByEmail(ctx context.Context, email string) ([]models.Payment, error) {
	return findAll[models.Payment](ctx, s.cPayments,
		bson.M{"email": util.NormalizeEmail(email), "status": models.StatusPaid}, oldestFirst())
}

func (s *Store) FindPaidPaymentsByTeam(ctx context.Context, teamID string) ([]models.Payment, error) {
	return findAll[models.Payment](ctx, s.cPayments,
		bson.M{"teamId": teamID, "status": models.StatusPaid}, oldestFirst())
}

func (s *Store) LinkPayment(ctx context.Context, paymentID, teamID string) (bool, error) {
	filter := bson.M{
		"_id": paymentID,
		"$or": bson.A{
			bson.M{"teamId": bson.M{"$exists": false}},
			bson.M{"teamId": ""},
			bson.M{"teamId": teamID},
		},
	}
	res, err := s.cPayments.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"teamId": teamID}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	// Tell "claimed by someone else" apart from "no such payment".
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListPayments(ctx context.Context, filter store.PaymentFilter) ([]models.Payment, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if !filter.Since.IsZero() {
		q["createdAt"] = bson.M{"$gte": filter.Since}
	}
	return findAll[models.Payment](ctx, s.cPayments, q, oldestFirst())
}

func (s *Store) SavePaymentRequest(ctx context.Context, r *models.PaymentRequest) error {
	_, err := s.cRequests.ReplaceOne(ctx, bson.M{"_id": r.RequestID}, r, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	return findOne[models.PaymentRequest](ctx, s.cRequests, bson.M{"_id": requestID})
}

// ---------- Submissions ----------

func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := s.cSubmissions.InsertOne(ctx, sub)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) GetSubmissionByUser(ctx context.Context, userID string) (*models.Submission, error) {
	return findOne[models.Submission](ctx, s.cSubmissions, bson.M{"userId": userID})
}

func (s *Store) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	return findAll[models.Submission](ctx, s.cSubmissions, bson.M{},
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}}))
}

// ---------- Users ----------

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	_, err := s.cUsers.ReplaceOne(ctx, bson.M{"_id": u.UserID}, u, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return findOne[models.User](ctx, s.cUsers, bson.M{"_id": userID})
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.cUsers.CountDocuments(ctx, bson.M{})
}

// ---------- Sponsors ----------

func (s *Store) ListSponsors(ctx context.Context) ([]models.Sponsor, error) {
	return findAll[models.Sponsor](ctx, s.cSponsors, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (s *Store) CreateSponsor(ctx context.Context, sp *models.Sponsor) error {
	_, err := s.cSponsors.InsertOne(ctx, sp)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateSponsor(ctx context.Context, sp *models.Sponsor) error {
	set := bson.M{
		"name":        sp.Name,
		"logo":        sp.Logo,
		"website":     sp.Website,
		"description": sp.Description,
		"category":    sp.Category,
		"updatedAt":   sp.UpdatedAt,
	}
	res, err := s.cSponsors.UpdateOne(ctx, bson.M{"_id": sp.ID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSponsor(ctx context.Context, id string) error {
	res, err := s.cSponsors.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

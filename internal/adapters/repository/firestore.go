package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ninahq/nina/internal/domain/model"
)

// Firestore collection names.
const (
	collIndividuals  = "individuals"
	collInteractions = "interactions"
	collActions      = "pdi_actions"
	collSystem       = "system"
	docBootstrap     = "bootstrap"
)

// FirestoreStore persists records in Cloud Firestore. Document IDs are the
// record IDs.
type FirestoreStore struct {
	client *firestore.Client
}

var (
	_ Store  = (*FirestoreStore)(nil)
	_ Ledger = (*FirestoreStore)(nil)
)

// NewFirestoreStore connects to the project's default database. When
// credentialsFile is empty, application default credentials are used.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ListIndividuals implements Store. Documents are ordered by creation time,
// then by ID.
func (s *FirestoreStore) ListIndividuals(ctx context.Context) (out []model.Individual, err error) {
	defer func(start time.Time) { observe(DriverFirestore, "list_individuals", start, err) }(time.Now())

	iter := s.client.Collection(collIndividuals).
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list individuals: %w", err)
		}
		var ind model.Individual
		if err := snap.DataTo(&ind); err != nil {
			return nil, fmt.Errorf("decode individual %s: %w", snap.Ref.ID, err)
		}
		ind.ID = snap.Ref.ID
		out = append(out, ind)
	}
	return out, nil
}

// GetIndividual implements Store.
func (s *FirestoreStore) GetIndividual(ctx context.Context, id string) (ind model.Individual, err error) {
	defer func(start time.Time) { observe(DriverFirestore, "get_individual", start, err) }(time.Now())

	snap, err := s.client.Collection(collIndividuals).Doc(id).Get(ctx)
	if isNotFound(err) {
		return model.Individual{}, ErrNotFound
	}
	if err != nil {
		return model.Individual{}, fmt.Errorf("get individual %s: %w", id, err)
	}
	if err := snap.DataTo(&ind); err != nil {
		return model.Individual{}, fmt.Errorf("decode individual %s: %w", id, err)
	}
	ind.ID = snap.Ref.ID
	return ind, nil
}

// FindIndividualByEmail implements Store. Firestore equality is
// case-sensitive, so the roster is scanned.
func (s *FirestoreStore) FindIndividualByEmail(ctx context.Context, email string) (model.Individual, error) {
	all, err := s.ListIndividuals(ctx)
	if err != nil {
		return model.Individual{}, err
	}
	email = strings.TrimSpace(email)
	for _, ind := range all {
		if strings.EqualFold(ind.Email, email) {
			return ind, nil
		}
	}
	return model.Individual{}, ErrNotFound
}

// UpsertIndividual implements Store.
func (s *FirestoreStore) UpsertIndividual(ctx context.Context, ind model.Individual) (err error) {
	defer func(start time.Time) { observe(DriverFirestore, "upsert_individual", start, err) }(time.Now())

	if _, err = s.client.Collection(collIndividuals).Doc(ind.ID).Set(ctx, ind); err != nil {
		return fmt.Errorf("upsert individual %s: %w", ind.ID, err)
	}
	return nil
}

// ListInteractions implements Store.
func (s *FirestoreStore) ListInteractions(ctx context.Context, individualID string) (out []model.Interaction, err error) {
	defer func(start time.Time) { observe(DriverFirestore, "list_interactions", start, err) }(time.Now())

	snaps, err := s.client.Collection(collInteractions).
		Where("individual_id", "==", individualID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	out = make([]model.Interaction, 0, len(snaps))
	for _, snap := range snaps {
		var it model.Interaction
		if err := snap.DataTo(&it); err != nil {
			return nil, fmt.Errorf("decode interaction %s: %w", snap.Ref.ID, err)
		}
		it.ID = snap.Ref.ID
		out = append(out, it)
	}
	// Equality filters need no composite index; ordering happens here.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpsertInteraction implements Store.
func (s *FirestoreStore) UpsertInteraction(ctx context.Context, it model.Interaction) (err error) {
	defer func(start time.Time) { observe(DriverFirestore, "upsert_interaction", start, err) }(time.Now())

	if _, err = s.client.Collection(collInteractions).Doc(it.ID).Set(ctx, it); err != nil {
		return fmt.Errorf("upsert interaction %s: %w", it.ID, err)
	}
	return nil
}

// ListActions implements Store.
func (s *FirestoreStore) ListActions(ctx context.Context, individualID string) (out []model.DevelopmentAction, err error) {
	defer func(start time.Time) { observe(DriverFirestore, "list_actions", start, err) }(time.Now())

	snaps, err := s.client.Collection(collActions).
		Where("individual_id", "==", individualID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out = make([]model.DevelopmentAction, 0, len(snaps))
	for _, snap := range snaps {
		var a model.DevelopmentAction
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("decode action %s: %w", snap.Ref.ID, err)
		}
		a.ID = snap.Ref.ID
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpsertAction implements Store.
func (s *FirestoreStore) UpsertAction(ctx context.Context, a model.DevelopmentAction) (err error) {
	defer func(start time.Time) { observe(DriverFirestore, "upsert_action", start, err) }(time.Now())

	if _, err = s.client.Collection(collActions).Doc(a.ID).Set(ctx, a); err != nil {
		return fmt.Errorf("upsert action %s: %w", a.ID, err)
	}
	return nil
}

// Count implements Store using server-side aggregation.
func (s *FirestoreStore) Count(ctx context.Context) (c Counts, err error) {
	defer func(start time.Time) { observe(DriverFirestore, "count", start, err) }(time.Now())

	individuals := s.client.Collection(collIndividuals)
	queries := []struct {
		q   firestore.Query
		dst *int
	}{
		{individuals.Query, &c.Individuals},
		{individuals.Where("tracked", "==", true), &c.Tracked},
		{s.client.Collection(collInteractions).Query, &c.Interactions},
		{s.client.Collection(collActions).Query, &c.Actions},
	}
	for _, q := range queries {
		res, err := q.q.NewAggregationQuery().WithCount("all").Get(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("count: %w", err)
		}
		v, ok := res["all"].(*firestorepb.Value)
		if !ok {
			return Counts{}, fmt.Errorf("count: unexpected aggregation result %T", res["all"])
		}
		*q.dst = int(v.GetIntegerValue())
	}
	return c, nil
}

// ConsumeBootstrap implements Ledger. Create fails if the marker document
// already exists, which makes the operation single-use across instances.
func (s *FirestoreStore) ConsumeBootstrap(ctx context.Context, email string) (err error) {
	defer func(start time.Time) { observe(DriverFirestore, "consume_bootstrap", start, err) }(time.Now())

	_, err = s.client.Collection(collSystem).Doc(docBootstrap).Create(ctx, map[string]any{
		"email":       email,
		"consumed_at": time.Now().UTC(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrBootstrapRetired
	}
	if err != nil {
		return fmt.Errorf("consume bootstrap: %w", err)
	}
	return nil
}

// README: Firestore store for active rides; every mutation runs in a transaction.
package ride

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schoolride/internal/types"
)

const collection = "activeRides"

var errExists = errors.New("ride already exists")

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) doc(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(collection).Doc(string(id))
}

// Create writes r only if no ride with the same ID exists; otherwise it returns errExists.
func (s *Store) Create(ctx context.Context, r *ActiveRide) error {
	_, err := s.doc(r.ID).Create(ctx, r)
	if status.Code(err) == codes.AlreadyExists {
		return errExists
	}
	if err != nil {
		return fmt.Errorf("create ride %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*ActiveRide, error) {
	snap, err := s.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %s: %w", id, err)
	}
	return decode(snap)
}

// Update reads the ride, applies fn and writes the result in one Firestore transaction.
// fn may run more than once when the transaction retries.
func (s *Store) Update(ctx context.Context, id types.ID, fn func(*ActiveRide) error) (*ActiveRide, error) {
	ref := s.doc(id)
	var out *ActiveRide
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		r, err := decode(snap)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		out = r
		return tx.Set(ref, r)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Watch calls fn with every snapshot of the ride until ctx ends or fn returns an error.
func (s *Store) Watch(ctx context.Context, id types.ID, fn func(*ActiveRide) error) error {
	it := s.doc(id).Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("watch ride %s: %w", id, err)
		}
		if !snap.Exists() {
			continue
		}
		r, err := decode(snap)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

func decode(snap *firestore.DocumentSnapshot) (*ActiveRide, error) {
	var r ActiveRide
	if err := snap.DataTo(&r); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", snap.Ref.ID, err)
	}
	return &r, nil
}

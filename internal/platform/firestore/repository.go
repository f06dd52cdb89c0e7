package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with its Firestore metadata.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository gives typed access to one collection. T must be Firestore (de)serialisable via
// `firestore` struct tags.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository binds a repository to collection.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Collection returns the collection name.
func (r *BaseRepository[T]) Collection() string { return r.collection }

// Get loads and decodes a document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.decode(snap)
}

// Set writes value under id, replacing the document unless merge options are supplied.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, value, opts...); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Create writes value under id and fails with a conflict if the document exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, value); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Update applies field updates. A missing document yields a not-found error.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconditions ...firestore.Precondition) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates, preconditions...); err != nil {
		return WrapError(r.op("update"), err)
	}
	return nil
}

// Delete removes the document. Deleting a missing document is not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return WrapError(r.op("delete"), err)
	}
	return nil
}

// Query runs a collection query and decodes every result.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if isIteratorDone(err) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := r.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// GetTx reads a document inside tx.
func (r *BaseRepository[T]) GetTx(ctx context.Context, tx *firestore.Transaction, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return Document[T]{}, WrapError(r.op("tx.get"), err)
	}
	return r.decode(snap)
}

// DocumentRef exposes the reference for transactional writes.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// CollectionRef exposes the collection for transactional queries.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	return r.collectionRef(ctx)
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var entity T
	if err := snap.DataTo(&entity); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", r.collection, snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + action
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}

// Package catalog owns the product collection in Qdrant: schema and index
// lifecycle, CRUD semantics, and filtered nearest-neighbor search. It is the
// sole owner of all Qdrant operations.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

// Store is an explicitly constructed handle to the product collection. Open
// one at process start and Close it at shutdown; nothing here is a
// process-wide singleton.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	qdrant      pb.QdrantClient
	collection  string
	log         *slog.Logger
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr, collection string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("catalog: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		collection:  collection,
		log:         log,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// scalarIndexes are the payload fields that get a field index so they can be
// combined with ANN search as exact-match or range filters.
var scalarIndexes = map[string]pb.FieldType{
	fieldSite:      pb.FieldType_FieldTypeKeyword,
	fieldKeyword:   pb.FieldType_FieldTypeKeyword,
	fieldPrice:     pb.FieldType_FieldTypeFloat,
	fieldTimestamp: pb.FieldType_FieldTypeInteger,
}

// EnsureIndex creates the collection and its payload indexes if missing.
// Safe to call repeatedly and concurrently; creation is idempotent.
func (s *Store) EnsureIndex(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("catalog: list collections: %w", err)
	}
	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			exists = true
			break
		}
	}

	if !exists {
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(domain.EmbeddingDims),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		// A concurrent caller may have won the race between List and Create.
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("catalog: create collection %s: %w", s.collection, err)
		}
		if err == nil {
			s.log.Info("catalog: collection created", "collection", s.collection, "dims", domain.EmbeddingDims)
		}
	}

	// Field index creation is idempotent on the server side.
	for field, ft := range scalarIndexes {
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      ft.Enum(),
		})
		if err != nil {
			return fmt.Errorf("catalog: index field %s: %w", field, err)
		}
	}
	return nil
}

// Insert assigns a fresh id, writes the document, and returns the id. It
// never overwrites an existing document: ids are random UUIDs, not content
// keys.
func (s *Store) Insert(ctx context.Context, doc domain.ProductDocument) (string, error) {
	if err := domain.ValidateEmbedding(doc.Embedding); err != nil {
		return "", fmt.Errorf("catalog: insert: %w", err)
	}
	id := uuid.NewString()
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: doc.Embedding},
				},
			},
			Payload: payloadFromDoc(doc),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("catalog: insert %q: %w", doc.Name, err)
	}
	return id, nil
}

// Delete removes a document by id. Deleting an absent id is a no-op, not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	return nil
}

// DeleteWhere bulk-deletes all documents matching the predicate and returns
// how many were removed. The count is taken just before the delete, so it is
// best-effort under concurrent writes.
func (s *Store) DeleteWhere(ctx context.Context, pred Predicate) (int64, error) {
	matched := s.Count(ctx, pred)

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: pred.filter(),
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: delete where: %w", err)
	}
	if matched < 0 {
		s.log.Warn("catalog: delete count unknown, reporting 0", "collection", s.collection)
		matched = 0
	}
	return matched, nil
}

func alreadyExists(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

// Count returns the number of documents matching the predicate, or -1 when
// the index cannot answer. Callers must treat -1 as "unknown", not zero; the
// fault is logged here and never raised.
func (s *Store) Count(ctx context.Context, pred Predicate) int64 {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         pred.filter(),
		Exact:          &exact,
	})
	if err != nil {
		s.log.Error("catalog: count failed", "error", err)
		return -1
	}
	return int64(resp.GetResult().GetCount())
}

// SearchNearest runs an approximate nearest-neighbor query combined with the
// predicate's scalar filter. Stored vectors are returned with each hit so
// callers can recompute similarity.
func (s *Store) SearchNearest(ctx context.Context, vector []float32, k int, pred Predicate) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         pred.filter(),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, sp := range resp.GetResult() {
		hits[i] = Hit{
			Doc:   docFromPayload(sp.GetId().GetUuid(), sp.GetPayload(), sp.GetVectors().GetVector().GetData()),
			Score: sp.GetScore(),
		}
	}
	return hits, nil
}

// RefreshCredentials revalidates the connection to the index. The crawler
// invokes it on a fixed schedule; query paths never do.
func (s *Store) RefreshCredentials(ctx context.Context) error {
	_, err := s.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("catalog: health check: %w", err)
	}
	return nil
}

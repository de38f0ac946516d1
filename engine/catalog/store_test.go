package catalog

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakePoints overrides the point operations the store uses; the embedded
// interface panics on anything unexpected.
type fakePoints struct {
	pb.PointsClient
	countErr      error
	count         uint64
	deleteErr     error
	deletes       int
	fieldIndexErr error
}

func (f *fakePoints) Count(context.Context, *pb.CountPoints, ...grpc.CallOption) (*pb.CountResponse, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: f.count}}, nil
}

func (f *fakePoints) Delete(context.Context, *pb.DeletePoints, ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deletes++
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) CreateFieldIndex(context.Context, *pb.CreateFieldIndexCollection, ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.fieldIndexErr != nil {
		return nil, f.fieldIndexErr
	}
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	pb.CollectionsClient
	existing  []string
	createErr error
	creates   int
}

func (f *fakeCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, name := range f.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (f *fakeCollections) Create(context.Context, *pb.CreateCollection, ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &pb.CollectionOperationResponse{}, nil
}

func testStore(points *fakePoints, collections *fakeCollections) *Store {
	return &Store{
		points:      points,
		collections: collections,
		collection:  "products",
		log:         slog.Default(),
	}
}

func TestCountUnreachableIndexReturnsSentinel(t *testing.T) {
	s := testStore(&fakePoints{countErr: errors.New("connection refused")}, nil)

	got := s.Count(context.Background(), Predicate{})
	if got != -1 {
		t.Errorf("Count on unreachable index = %d, want -1", got)
	}
}

func TestCountReturnsMatches(t *testing.T) {
	s := testStore(&fakePoints{count: 12}, nil)
	if got := s.Count(context.Background(), Predicate{}); got != 12 {
		t.Errorf("Count = %d, want 12", got)
	}
}

func TestDeleteWhereUnknownCountReportsZero(t *testing.T) {
	fp := &fakePoints{countErr: errors.New("connection refused")}
	s := testStore(fp, nil)

	deleted, err := s.DeleteWhere(context.Background(), Predicate{})
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 when the count is unknown", deleted)
	}
	if fp.deletes != 1 {
		t.Error("delete must still run when the count is unknown")
	}
}

func TestDeleteWhereReportsCount(t *testing.T) {
	s := testStore(&fakePoints{count: 3}, nil)
	deleted, err := s.DeleteWhere(context.Background(), Predicate{})
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
}

func TestEnsureIndexCreatesMissingCollection(t *testing.T) {
	fc := &fakeCollections{}
	s := testStore(&fakePoints{}, fc)

	if err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if fc.creates != 1 {
		t.Errorf("creates = %d, want 1", fc.creates)
	}
}

func TestEnsureIndexSkipsExistingCollection(t *testing.T) {
	fc := &fakeCollections{existing: []string{"products"}}
	s := testStore(&fakePoints{}, fc)

	if err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if fc.creates != 0 {
		t.Errorf("creates = %d, want 0", fc.creates)
	}
}

func TestEnsureIndexConcurrentCreateLosesRaceQuietly(t *testing.T) {
	// Collection absent at List time but created by another caller before
	// Create lands.
	for _, createErr := range []error{
		status.Error(codes.AlreadyExists, "collection exists"),
		errors.New("collection `products` already exists"),
	} {
		fc := &fakeCollections{createErr: createErr}
		s := testStore(&fakePoints{}, fc)
		if err := s.EnsureIndex(context.Background()); err != nil {
			t.Errorf("EnsureIndex with %v: %v, want nil", createErr, err)
		}
	}
}

func TestEnsureIndexCreateFailure(t *testing.T) {
	fc := &fakeCollections{createErr: status.Error(codes.Internal, "disk full")}
	s := testStore(&fakePoints{}, fc)
	if err := s.EnsureIndex(context.Background()); err == nil {
		t.Fatal("want error on genuine create failure")
	}
}

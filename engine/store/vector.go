package store

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantIndex is the default VectorIndex: a thin wrapper over Qdrant's
// gRPC points/collections clients providing kNN cosine search.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewQdrantIndex dials Qdrant at addr and binds to collection.
func NewQdrantIndex(addr, collection string) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("store: dial qdrant %s: %w", addr, err)
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the bound collection with cosine distance
// and the given dimension if it does not already exist (I6: one
// dimension per collection, never mixed in a kNN call).
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("store: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("store: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert implements VectorIndex.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, embedding []float32) error {
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embedding}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("store: upsert point %s: %w", id, err)
	}
	return nil
}

// Delete implements VectorIndex.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{
					{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("store: delete point %s: %w", id, err)
	}
	return nil
}

// Search implements VectorIndex: deterministic kNN cosine search,
// ties broken by id (per §4.1's determinism contract) since Qdrant
// itself does not guarantee score-tie ordering.
func (q *QdrantIndex) Search(ctx context.Context, embedding []float32, k int) ([]VectorHit, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("store: vector search: %w", err)
	}

	hits := make([]VectorHit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = VectorHit{ID: r.GetId().GetUuid(), Score: r.GetScore()}
	}
	sortHitsDeterministic(hits)
	return hits, nil
}

func sortHitsDeterministic(hits []VectorHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			a, b := hits[j-1], hits[j]
			if a.Score > b.Score || (a.Score == b.Score && a.ID <= b.ID) {
				break
			}
			hits[j-1], hits[j] = hits[j], hits[j-1]
		}
	}
}

var _ VectorIndex = (*QdrantIndex)(nil)

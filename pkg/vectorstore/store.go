// Package vectorstore owns all Qdrant operations for the rulebook chunk
// collection: one collection, cosine distance, keyword payload indexes on
// game_id and document_id.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys written on every point.
const (
	payloadGameID     = "game_id"
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
	payloadPage       = "page"
	payloadCharStart  = "char_start"
	payloadCharEnd    = "char_end"
	payloadIndexedAt  = "indexed_at"
)

// ChunkPoint is one chunk ready to be written to the collection.
type ChunkPoint struct {
	ID         string
	Vector     []float32
	ChunkIndex int
	Text       string
	Page       int
	CharStart  int
	CharEnd    int
}

// SearchResult is one scored chunk returned from a filtered search.
type SearchResult struct {
	Score      float64
	Text       string
	Page       int
	DocumentID string
	ChunkIndex int
}

// Store is the Qdrant adapter. All operations run under a bounded
// per-operation timeout so an unreachable store fails fast.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	vectorSize  int
	opTimeout   time.Duration
}

// New dials Qdrant at the given gRPC address.
func New(addr, collection string, vectorSize int, opTimeout time.Duration) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		vectorSize:  vectorSize,
		opTimeout:   opTimeout,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Health verifies the store is reachable within the operation timeout.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if _, err := s.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("vectorstore: unreachable: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if they
// do not exist. Safe to call on every startup.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
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
						Size:     uint64(s.vectorSize),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("vectorstore: create collection %s: %w", s.collection, err)
		}
	}

	for _, field := range []string{payloadGameID, payloadDocumentID} {
		if err := s.ensureKeywordIndex(ctx, field); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureKeywordIndex(ctx context.Context, field string) error {
	fieldType := pb.FieldType_FieldTypeKeyword
	wait := true
	_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      field,
		FieldType:      &fieldType,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create %s index: %w", field, err)
	}
	return nil
}

// Upsert writes all points for one document batch-atomically (Wait=true)
// and returns the number of points written. Every payload carries the
// (game_id, document_id) pair of its source.
func (s *Store) Upsert(ctx context.Context, gameID, documentID string, chunks []ChunkPoint) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				payloadGameID:     stringValue(gameID),
				payloadDocumentID: stringValue(documentID),
				payloadChunkIndex: intValue(int64(c.ChunkIndex)),
				payloadText:       stringValue(c.Text),
				payloadPage:       intValue(int64(c.Page)),
				payloadCharStart:  intValue(int64(c.CharStart)),
				payloadCharEnd:    intValue(int64(c.CharEnd)),
				payloadIndexedAt:  stringValue(indexedAt),
			},
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("vectorstore: upsert %d points: %w", len(points), err)
	}
	return len(points), nil
}

// Search returns up to limit nearest points whose game_id matches, ordered
// by score descending with ties broken by document id then chunk index.
func (s *Store) Search(ctx context.Context, gameID string, vector []float32, limit int) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatch(payloadGameID, gameID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := r.GetPayload()
		results = append(results, SearchResult{
			Score:      float64(r.GetScore()),
			Text:       payload[payloadText].GetStringValue(),
			Page:       int(payload[payloadPage].GetIntegerValue()),
			DocumentID: payload[payloadDocumentID].GetStringValue(),
			ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
		})
	}
	SortResults(results)
	return results, nil
}

// SortResults orders results by score descending, then document id
// ascending, then chunk index ascending. Exported so the deterministic
// ordering contract is testable without a live store.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}

// DeleteDocument removes every point belonging to the document. Deleting
// a document with no points is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch(payloadDocumentID, documentID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete document %s: %w", documentID, err)
	}
	return nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

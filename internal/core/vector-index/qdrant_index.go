package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const (
	payloadDocumentID = "document_id"
	payloadUserID     = "user_id"
	payloadChunkIndex = "chunk_index"
	payloadPage       = "page"
	payloadHeading    = "heading"
)

// QdrantIndex stores chunk vectors in a Qdrant collection. Point ids are the
// numeric chunk primary keys.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

var _ core.VectorIndex = (*QdrantIndex)(nil)

func NewQdrantIndex(ctx context.Context, cfg *config.Config) (*QdrantIndex, error) {
	host, port := parseHostPort(cfg.QdrantAddr, "localhost", 6334)

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantAPIKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.QdrantCollection,
		logger:     slog.Default().With("component", "vector-index"),
	}
	if err := idx.ensureCollection(ctx, uint64(cfg.EmbedDim)); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// ensureCollection creates the collection and the keyword indexes used by the
// delete and count filters.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dim uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists {
		q.logger.Info("collection exists", "collection", q.collection)
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}

	for _, field := range []string{payloadDocumentID, payloadUserID} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant index %s: %w", field, err)
		}
	}
	q.logger.Info("collection created", "collection", q.collection, "dim", dim)
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []core.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         toPointStructs(points),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(toPointIDs(ids)...),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete ids: %w", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(matchFilter(payloadDocumentID, documentID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete document: %w", err)
	}
	return nil
}

func (q *QdrantIndex) CountForDocument(ctx context.Context, documentID string) (int, error) {
	return q.count(ctx, matchFilter(payloadDocumentID, documentID))
}

func (q *QdrantIndex) CountForUser(ctx context.Context, userID string) (int, error) {
	return q.count(ctx, matchFilter(payloadUserID, userID))
}

func (q *QdrantIndex) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

func toPointStructs(points []core.VectorPoint) []*qdrant.PointStruct {
	out := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		out = append(out, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(pointPayload(p)),
		})
	}
	return out
}

// pointPayload carries the structural hints used for filtered retrieval.
func pointPayload(p core.VectorPoint) map[string]any {
	payload := map[string]any{
		payloadDocumentID: p.DocumentID,
		payloadUserID:     p.UserID,
		payloadChunkIndex: int64(p.ChunkIndex),
	}
	if p.Page > 0 {
		payload[payloadPage] = int64(p.Page)
	}
	if p.Heading != "" {
		payload[payloadHeading] = p.Heading
	}
	return payload
}

func toPointIDs(ids []int64) []*qdrant.PointId {
	out := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		out = append(out, qdrant.NewIDNum(uint64(id)))
	}
	return out
}

func matchFilter(field, value string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
	}
}

func parseHostPort(addr string, defaultHost string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

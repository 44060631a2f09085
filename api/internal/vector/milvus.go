package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rotisserie/eris"

	"problem-recs/api/internal/recommend"
)

const (
	fieldProblemID  = "problem_id"
	fieldDifficulty = "difficulty"
	fieldEmbedding  = "embedding"
)

// milvusAPI — то подмножество client.Client, которым пользуемся.
type milvusAPI interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Close() error
}

type Milvus struct {
	cl         milvusAPI
	collection string
}

func NewMilvus(ctx context.Context, addr, collection string) (*Milvus, error) {
	c, err := client.NewGrpcClient(ctx, addr)
	if err != nil {
		return nil, eris.Wrapf(err, "connect to milvus at %s", addr)
	}
	return &Milvus{cl: c, collection: collection}, nil
}

func (m *Milvus) Nearest(ctx context.Context, embedding []float32, k int, band []recommend.Difficulty) ([]string, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(10)
	if err != nil {
		return nil, eris.Wrap(err, "milvus search params")
	}
	res, err := m.cl.Search(
		ctx,
		m.collection,
		[]string{},
		bandExpr(band),
		[]string{fieldProblemID},
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, eris.Wrap(err, "milvus search")
	}

	var ids []string
	for _, r := range res {
		col, ok := r.IDs.(*entity.ColumnVarChar)
		if !ok {
			return nil, eris.Errorf("milvus search: unexpected id column %T", r.IDs)
		}
		ids = append(ids, col.Data()...)
	}
	return ids, nil
}

func (m *Milvus) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	dim := len(items[0].Embedding)
	ids := make([]string, 0, len(items))
	diffs := make([]string, 0, len(items))
	vecs := make([][]float32, 0, len(items))
	for _, it := range items {
		if len(it.Embedding) != dim {
			return eris.Errorf("embedding dim mismatch for %s: %d != %d", it.ProblemID, len(it.Embedding), dim)
		}
		ids = append(ids, it.ProblemID)
		diffs = append(diffs, string(it.Difficulty))
		vecs = append(vecs, it.Embedding)
	}
	_, err := m.cl.Upsert(ctx, m.collection, "",
		entity.NewColumnVarChar(fieldProblemID, ids),
		entity.NewColumnVarChar(fieldDifficulty, diffs),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vecs),
	)
	return eris.Wrap(err, "milvus upsert")
}

// EnsureCollection создаёт коллекцию с IVF_FLAT/COSINE индексом, если её нет, и загружает её.
func (m *Milvus) EnsureCollection(ctx context.Context, dim int) error {
	ok, err := m.cl.HasCollection(ctx, m.collection)
	if err != nil {
		return eris.Wrap(err, "milvus has collection")
	}
	if !ok {
		schema := entity.NewSchema().
			WithName(m.collection).
			WithDescription("problem text embeddings").
			WithField(entity.NewField().WithName(fieldProblemID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldDifficulty).WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
		if err := m.cl.CreateCollection(ctx, schema, 1); err != nil {
			return eris.Wrap(err, "milvus create collection")
		}
		idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return eris.Wrap(err, "milvus index params")
		}
		if err := m.cl.CreateIndex(ctx, m.collection, fieldEmbedding, idx, false); err != nil {
			return eris.Wrap(err, "milvus create index")
		}
	}
	return eris.Wrap(m.cl.LoadCollection(ctx, m.collection, false), "milvus load collection")
}

func (m *Milvus) Close() error { return m.cl.Close() }

// bandExpr — фильтр Milvus по сложности: difficulty in ["easy","medium"].
func bandExpr(band []recommend.Difficulty) string {
	if len(band) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(band))
	for _, d := range recommend.DifficultyStrings(band) {
		quoted = append(quoted, fmt.Sprintf("%q", d))
	}
	return fieldDifficulty + " in [" + strings.Join(quoted, ",") + "]"
}

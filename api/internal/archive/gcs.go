package archive

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"problem-recs/api/internal/util"
)

// GCS складывает исходные картинки загрузок в бакет: uploads/yyyy/mm/dd/<uuid>.<ext>.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "creating storage client")
	}
	return &GCS{client: client, bucket: bucket, prefix: "uploads/", now: time.Now}, nil
}

func (g *GCS) Put(ctx context.Context, data []byte, mime string) (string, error) {
	name := objectName(g.prefix, g.now().UTC(), uuid.New(), mime)

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mime
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", eris.Wrapf(err, "writing object %s", name)
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrapf(err, "closing object writer %s", name)
	}
	return name, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func objectName(prefix string, t time.Time, id uuid.UUID, mime string) string {
	return prefix + t.Format("2006/01/02") + "/" + id.String() + "." + util.ExtForMIME(mime)
}

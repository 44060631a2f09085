package archive

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestObjectName(t *testing.T) {
	id := uuid.MustParse("6f1c1a2e-9a0b-4c3d-8e7f-001122334455")
	ts := time.Date(2025, 3, 7, 23, 59, 0, 0, time.UTC)
	got := objectName("uploads/", ts, id, "image/png")
	want := "uploads/2025/03/07/6f1c1a2e-9a0b-4c3d-8e7f-001122334455.png"
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
	if got := objectName("uploads/", ts, id, "application/pdf"); got[len(got)-4:] != ".bin" {
		t.Fatalf("unknown mime ext: %q", got)
	}
}

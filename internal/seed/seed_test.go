package seed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sungwon/dining-concierge/internal/search"
)

func TestReadDocuments(t *testing.T) {
	t.Parallel()

	input := "\ufeffName,Restaurant ID,Cuisine,Rating\n" +
		"Trattoria,r1,italian,4.5\n" +
		"\"Noodle, Bar\",r2,chinese,4\n" +
		"Ghost,,thai,3\n" +
		"Short,r4\n"

	docs, skipped, err := ReadDocuments(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []search.Document{
		{RestaurantID: "r1", Cuisine: "italian"},
		{RestaurantID: "r2", Cuisine: "chinese"},
	}
	if len(docs) != len(want) {
		t.Fatalf("expected %d docs, got %d: %+v", len(want), len(docs), docs)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("doc %d: expected %+v, got %+v", i, want[i], docs[i])
		}
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", skipped)
	}
}

func TestReadDocuments_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":          "",
		"missing column": "Restaurant ID,Name\nr1,x\n",
		"bad quoting":    "Restaurant ID,Cuisine\n\"r1,italian\n",
	}
	for name, input := range tests {
		if _, _, err := ReadDocuments(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	docs := make([]search.Document, 1201)
	chunks := Chunk(docs, 500)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 500 || len(chunks[1]) != 500 || len(chunks[2]) != 201 {
		t.Errorf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if got := Chunk(nil, 500); len(got) != 0 {
		t.Errorf("expected no chunks for no docs, got %d", len(got))
	}
}

type mockS3 struct {
	mu      sync.Mutex
	objects map[string]string
	inputs  []*s3.GetObjectInput
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	body, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestOpener_S3(t *testing.T) {
	t.Parallel()

	client := &mockS3{objects: map[string]string{"seed-bucket/exports/restaurants.csv": "Restaurant ID,Cuisine\nr1,italian\n"}}
	rc, err := NewOpener(client).Open(context.Background(), "s3://seed-bucket/exports/restaurants.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	docs, _, err := ReadDocuments(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 || docs[0].RestaurantID != "r1" {
		t.Errorf("unexpected docs %+v", docs)
	}
}

func TestOpener_S3Errors(t *testing.T) {
	t.Parallel()

	client := &mockS3{objects: map[string]string{}}
	opener := NewOpener(client)

	if _, err := opener.Open(context.Background(), "s3://bucket/missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	for _, bad := range []string{"s3://bucket", "s3:///key.csv"} {
		if _, err := opener.Open(context.Background(), bad); err == nil {
			t.Errorf("%s: expected a parse error", bad)
		}
	}
	if _, err := NewOpener(nil).Open(context.Background(), "s3://bucket/key.csv"); err == nil {
		t.Error("expected an error without an s3 client")
	}
}

func TestOpener_LocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "restaurants.csv")
	if err := os.WriteFile(path, []byte("Cuisine,Restaurant ID\nthai,r9\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rc, err := NewOpener(nil).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	docs, _, err := ReadDocuments(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 || docs[0] != (search.Document{RestaurantID: "r9", Cuisine: "thai"}) {
		t.Errorf("unexpected docs %+v", docs)
	}

	if _, err := NewOpener(nil).Open(context.Background(), filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

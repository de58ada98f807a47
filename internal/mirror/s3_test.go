package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-parser/internal/config"
)

type mockPutter struct {
	mock.Mock
	bodies map[string]string
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(params.Body)
	if m.bodies == nil {
		m.bodies = map[string]string{}
	}
	m.bodies[aws.ToString(params.Key)] = string(data)

	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key), aws.ToString(params.ContentType))
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestMirrorFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "jane.json")
	require.NoError(t, os.WriteFile(local, []byte(`{"Name":"Jane"}`), 0644))

	putter := &mockPutter{}
	putter.On("PutObject", "resumes", "outputs/jane.json", "application/json").Return(&s3.PutObjectOutput{}, nil)

	store := &Store{client: putter, bucket: "resumes"}
	location, err := store.MirrorFile(context.Background(), OutputsPrefix, local)

	require.NoError(t, err)
	assert.Equal(t, "s3://resumes/outputs/jane.json", location)
	assert.Equal(t, `{"Name":"Jane"}`, putter.bodies["outputs/jane.json"])
	putter.AssertExpectations(t)
}

func TestUpload_Error(t *testing.T) {
	putter := &mockPutter{}
	putter.On("PutObject", "resumes", "inputs/cv.pdf", "application/pdf").Return(nil, errors.New("access denied"))

	store := &Store{client: putter, bucket: "resumes"}
	_, err := store.MirrorFile(context.Background(), InputsPrefix, writeTemp(t, "cv.pdf"))

	assert.ErrorContains(t, err, "access denied")
}

func TestMirrorFile_MissingLocalFile(t *testing.T) {
	store := &Store{client: &mockPutter{}, bucket: "resumes"}
	_, err := store.MirrorFile(context.Background(), InputsPrefix, filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeFor("a.pdf"))
	assert.Equal(t, "application/json", contentTypeFor("a.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.bin"))
}

// TestStore_Integration runs against a real bucket when S3_* variables are set
func TestStore_Integration(t *testing.T) {
	cfg := config.MirrorConfig{
		Bucket:    os.Getenv("S3_BUCKET"),
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		Region:    "us-east-1",
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		t.Skip("S3 configuration not set (S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY), skipping integration test")
	}

	store, err := NewStore(context.Background(), cfg)
	require.NoError(t, err)

	_, err = store.MirrorFile(context.Background(), "test-"+InputsPrefix, writeTemp(t, "integration.txt"))
	require.NoError(t, err)
}

func writeTemp(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("content"), 0644))
	return p
}

package imagestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"rx-reader/internal/domain"
)

// mockS3Client keeps objects in memory and records PutObject inputs.
type mockS3Client struct {
	puts    []*s3.PutObjectInput
	objects map[string]object
	putErr  error
	getErr  error
}

type object struct {
	body        []byte
	contentType string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string]object)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.puts = append(m.puts, input)
	m.objects[aws.ToString(input.Key)] = object{body: body, contentType: aws.ToString(input.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	obj, ok := m.objects[aws.ToString(input.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.body)),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func newTestStore(t *testing.T, mock *mockS3Client) *Store {
	t.Helper()
	s, err := NewStore(mock, "rx-images", nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "abc" }
	return s
}

func TestNewStore_Validates(t *testing.T) {
	_, err := NewStore(nil, "bucket", nil)
	require.Error(t, err)
	_, err = NewStore(newMockS3(), "", nil)
	require.Error(t, err)
}

func TestStore_PutAndGet(t *testing.T) {
	mock := newMockS3()
	s := newTestStore(t, mock)

	key, err := s.Put(context.Background(), domain.Image{MIMEType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)
	require.Equal(t, "prescriptions/v1/by-date/2026/03/04/abc.png", key)

	require.Len(t, mock.puts, 1)
	put := mock.puts[0]
	require.Equal(t, "rx-images", aws.ToString(put.Bucket))
	require.Equal(t, "image/png", aws.ToString(put.ContentType))
	require.Equal(t, int64(9), aws.ToInt64(put.ContentLength))
	require.Equal(t, s3types.ServerSideEncryptionAes256, put.ServerSideEncryption)

	img, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, domain.Image{MIMEType: "image/png", Data: []byte("png-bytes")}, img)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t, newMockS3())
	_, err := s.Get(context.Background(), "prescriptions/v1/nope.png")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Errors(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	mock.getErr = errors.New("throttled")
	s := newTestStore(t, mock)

	_, err := s.Put(context.Background(), domain.Image{MIMEType: "application/pdf", Data: []byte("%PDF")})
	require.ErrorContains(t, err, "access denied")
	require.ErrorContains(t, err, ".pdf")

	_, err = s.Get(context.Background(), "k")
	require.ErrorContains(t, err, "throttled")
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

type mockVersion struct {
	id   string
	data []byte
}

// MockClient is an in-memory versioned bucket for tests.
type MockClient struct {
	HeadErr   error
	GetErr    error
	PutErrs   []error // returned by successive puts, then success
	DeleteErr error
	ListErr   error

	objects map[string][]mockVersion // bucket/key -> versions, latest last
	seq     int

	// Track calls
	Puts    []string
	Deletes []string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string][]mockVersion)}
}

// Seed stores data under key as a new version without recording a put.
func (m *MockClient) Seed(bucket, key string, data []byte) {
	m.seq++
	full := bucket + "/" + key
	m.objects[full] = append(m.objects[full], mockVersion{id: fmt.Sprintf("v%d", m.seq), data: data})
}

// Object returns the latest version of key.
func (m *MockClient) Object(bucket, key string) ([]byte, bool) {
	vs := m.objects[bucket+"/"+key]
	if len(vs) == 0 {
		return nil, false
	}
	return vs[len(vs)-1].data, true
}

// Versions returns the number of stored versions of key.
func (m *MockClient) Versions(bucket, key string) int {
	return len(m.objects[bucket+"/"+key])
}

func (m *MockClient) HeadObject(_ context.Context, bucket, key string) (bool, error) {
	if m.HeadErr != nil {
		return false, m.HeadErr
	}
	_, ok := m.Object(bucket, key)
	return ok, nil
}

func (m *MockClient) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockClient) PutObject(_ context.Context, bucket, key string, body io.ReadSeeker) error {
	m.Puts = append(m.Puts, bucket+"/"+key)
	if len(m.PutErrs) > 0 {
		err := m.PutErrs[0]
		m.PutErrs = m.PutErrs[1:]
		if err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.Seed(bucket, key, data)
	return nil
}

func (m *MockClient) DeleteObject(_ context.Context, bucket, key, versionID string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	full := bucket + "/" + key
	m.Deletes = append(m.Deletes, full+"@"+versionID)
	vs := m.objects[full]
	if versionID == "" {
		if len(vs) > 0 {
			vs = vs[:len(vs)-1]
		}
	} else {
		kept := vs[:0]
		for _, v := range vs {
			if v.id != versionID {
				kept = append(kept, v)
			}
		}
		vs = kept
	}
	if len(vs) == 0 {
		delete(m.objects, full)
	} else {
		m.objects[full] = vs
	}
	return nil
}

func (m *MockClient) ListObjectVersions(_ context.Context, bucket, prefix string) ([]ObjectVersion, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []ObjectVersion
	for _, key := range m.keys(bucket, prefix) {
		vs := m.objects[bucket+"/"+key]
		for i, v := range vs {
			out = append(out, ObjectVersion{
				Key:          key,
				VersionID:    v.id,
				IsLatest:     i == len(vs)-1,
				Size:         int64(len(v.data)),
				LastModified: time.Unix(int64(i), 0),
			})
		}
	}
	return out, nil
}

func (m *MockClient) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.keys(bucket, prefix), nil
}

func (m *MockClient) keys(bucket, prefix string) []string {
	var out []string
	for full := range m.objects {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"whalewatcher/internal/blob/core"
)

// fakeS3 answers the subset of path-style S3 calls the adapter issues.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	calls   []string
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]fakeObject)} }

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header, ContentLength: int64(len(body))}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method)
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()
	if req.Method == http.MethodGet && query.Get("list-type") == "2" {
		return f.list(query.Get("prefix"), query.Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {"\"etag-" + key + "\""},
			"Last-Modified":  {time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			h.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodHead {
			resp := response(http.StatusOK, nil, h)
			resp.ContentLength = int64(len(obj.body))
			return resp, nil
		}
		return response(http.StatusOK, obj.body, h), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		md := map[string]string{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				md[strings.ToLower(strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-"))] = v[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return response(http.StatusOK, nil, http.Header{"Etag": {"\"etag\""}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

// list returns one key per page to exercise continuation handling.
func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if start < len(keys) {
		k := keys[start]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-03-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	if start+1 < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", start+1)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	fake := newFakeS3()
	s, err := New(context.Background(), Config{
		Bucket:          "whalewatcher-docs",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, fake
}

func TestS3StoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if s.Driver() != core.DriverS3 || s.Bucket() != "whalewatcher-docs" {
		t.Fatalf("unexpected driver or bucket")
	}
	key := core.DocumentKey("CASE-1", "DOC-1", "aps.pdf")
	info, err := s.Put(ctx, key, strings.NewReader("records"), core.PutOptions{ContentType: "application/pdf", Metadata: map[string]string{"case": "CASE-1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("records")) || info.ContentType != "application/pdf" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["case"] != "CASE-1" {
		t.Fatalf("expected metadata round trip, got %+v", info.Metadata)
	}
	if _, err := s.Put(ctx, key, strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "records" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
	if ok, err := s.Delete(ctx, key); !ok || err != nil {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, key); ok || err != nil {
		t.Fatalf("expected missing delete, got %v %v", ok, err)
	}
}

func TestS3StoreListPaginates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, name := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		if _, err := s.Put(ctx, core.DocumentKey("CASE-1", "DOC-1", name), strings.NewReader(name), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	if _, err := s.Put(ctx, core.DocumentKey("CASE-2", "DOC-2", "z.pdf"), strings.NewReader("z"), core.PutOptions{}); err != nil {
		t.Fatalf("put other case: %v", err)
	}
	infos, err := s.List(ctx, core.CasePrefix("CASE-1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 objects across pages, got %d", len(infos))
	}
	if !strings.HasSuffix(infos[0].Key, "a.pdf") || !strings.HasSuffix(infos[2].Key, "c.pdf") {
		t.Fatalf("expected sorted keys, got %+v", infos)
	}
}

func TestS3StorePresign(t *testing.T) {
	s, _ := newTestStore(t)
	u, err := s.PresignURL(context.Background(), "cases/CASE-1/x.pdf", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "X-Amz-Expires=60") || !strings.Contains(u, "whalewatcher-docs") {
		t.Fatalf("unexpected presigned url %s", u)
	}
	if _, err := s.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

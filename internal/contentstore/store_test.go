package contentstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
)

type failingMirror struct {
	name  string
	err   error
	calls int32
}

func (f *failingMirror) Name() string { return f.name }
func (f *failingMirror) Put(context.Context, []byte) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "", f.err
}
func (f *failingMirror) Get(context.Context, string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, f.err
}
func (f *failingMirror) Has(context.Context, string) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	return false, f.err
}

func TestPutGetRoundTrip(t *testing.T) {
	s, err := New(time.Second, NewMemoryMirror(""))
	require.NoError(t, err)
	ctx := context.Background()

	for _, in := range [][]byte{[]byte("document body"), {}, {0x00, 0xff, 0x10}} {
		addr, err := s.Put(ctx, in)
		require.NoError(t, err)
		require.NoError(t, fingerprint.Validate(addr))
		out, err := s.Get(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, len(in), len(out))
		require.Equal(t, string(in), string(out))
		ok, err := s.Available(ctx, addr)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestGetFallsBackInOrder(t *testing.T) {
	down := &failingMirror{name: "down", err: errors.New("connection refused")}
	mem := NewMemoryMirror("backup")
	s, err := New(time.Second, down, mem)
	require.NoError(t, err)
	ctx := context.Background()

	addr, err := s.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	b, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))
	require.Equal(t, int32(2), atomic.LoadInt32(&down.calls))
}

func TestGetMissingAndFailing(t *testing.T) {
	ctx := context.Background()
	addr, err := fingerprint.ContentAddress([]byte("never stored"))
	require.NoError(t, err)

	s, err := New(time.Second, NewMemoryMirror("a"), NewMemoryMirror("b"))
	require.NoError(t, err)
	_, err = s.Get(ctx, addr)
	require.ErrorIs(t, err, apperr.ErrContentNotFound)
	ok, err := s.Available(ctx, addr)
	require.NoError(t, err)
	require.False(t, ok)

	broken, err := New(time.Second, &failingMirror{name: "x", err: errors.New("timeout")})
	require.NoError(t, err)
	_, err = broken.Get(ctx, addr)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	_, err = broken.Available(ctx, addr)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	_, err = s.Get(ctx, "not-an-address")
	require.ErrorIs(t, err, apperr.ErrInvalidAddressFormat)
}

func TestNewRejectsDuplicateMirrors(t *testing.T) {
	_, err := New(time.Second)
	require.Error(t, err)
	_, err = New(time.Second, NewMemoryMirror("m"), NewMemoryMirror("m"))
	require.Error(t, err)
}

func TestGatewayMirror(t *testing.T) {
	blobs := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v0/add":
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			body, err := io.ReadAll(f)
			require.NoError(t, err)
			addr, _ := fingerprint.ContentAddress(body)
			blobs[addr] = string(body)
			_, _ = w.Write([]byte(`{"Name":"document","Hash":"` + addr + `","Size":"1"}`))
		case strings.HasPrefix(r.URL.Path, "/ipfs/"):
			b, ok := blobs[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(b))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	readOnly := NewGatewayMirror("public", srv.URL, "", time.Second)
	writable := NewGatewayMirror("node", srv.URL, srv.URL, time.Second)
	s, err := New(time.Second, readOnly, writable)
	require.NoError(t, err)
	ctx := context.Background()

	addr, err := s.Put(ctx, []byte("via gateway"))
	require.NoError(t, err)
	b, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, "via gateway", string(b))

	ok, err := readOnly.Has(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)

	missing, _ := fingerprint.ContentAddress([]byte("absent"))
	_, err = readOnly.Get(ctx, missing)
	require.ErrorIs(t, err, apperr.ErrContentNotFound)
}

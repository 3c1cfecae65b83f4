package ledger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xmlHeader = `<?xml version="1.0"?><methodResponse><params><param>`
const xmlFooter = `</param></params></methodResponse>`

func xmlReply(value string) string {
	return xmlHeader + "<value>" + value + "</value>" + xmlFooter
}

type fakeOdoo struct {
	authCalls  atomic.Int32
	execCalls  atomic.Int32
	uid        string
	delay      time.Duration
	lastBodies []string
}

func (f *fakeOdoo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	payload := string(body)
	f.lastBodies = append(f.lastBodies, payload)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	w.Header().Set("Content-Type", "text/xml")
	switch {
	case strings.HasSuffix(r.URL.Path, "/xmlrpc/2/common"):
		f.authCalls.Add(1)
		_, _ = io.WriteString(w, xmlReply(f.uid))
	case strings.Contains(payload, "<string>search_count</string>"):
		f.execCalls.Add(1)
		_, _ = io.WriteString(w, xmlReply("<int>42</int>"))
	case strings.Contains(payload, "<string>search_read</string>"):
		f.execCalls.Add(1)
		_, _ = io.WriteString(w, xmlReply(`<array><data>
<value><struct>
<member><name>id</name><value><int>1</int></value></member>
<member><name>balance</name><value><double>-150.5</double></value></member>
<member><name>product_id</name><value><array><data><value><int>7</int></value><value><string>Amoxi</string></value></data></array></value></member>
<member><name>partner_id</name><value><boolean>0</boolean></value></member>
</struct></value>
</data></array>`))
	default:
		_, _ = io.WriteString(w, `<?xml version="1.0"?><methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>2</int></value></member>
<member><name>faultString</name><value><string>unknown method</string></value></member>
</struct></value></fault></methodResponse>`)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *OdooClient {
	t.Helper()
	client, err := NewOdooClient(Config{
		URL:      srv.URL,
		Database: "farma",
		Username: "bot@example.com",
		Password: "secret",
		Timeout:  timeout,
	}, nil, NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	return client
}

func TestOdooClientCountAndSearchRead(t *testing.T) {
	fake := &fakeOdoo{uid: "<int>7</int>"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := newTestClient(t, srv, time.Second)
	ctx := context.Background()

	n, err := client.Count(ctx, ModelInvoiceLine, Domain{}.Where("parent_state", "=", "posted"))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	records, err := client.SearchRead(ctx, ModelInvoiceLine, nil, ReadOptions{Fields: []string{"balance", "product_id"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, -150.5, records[0].Float("balance"))
	rel, ok := records[0].Relation("product_id")
	require.True(t, ok)
	assert.Equal(t, "Amoxi", rel.Name)
	_, ok = records[0].Relation("partner_id")
	assert.False(t, ok)

	assert.True(t, client.Online())
	assert.Equal(t, int32(1), fake.authCalls.Load(), "uid must be cached after the first login")
	assert.Equal(t, int32(2), fake.execCalls.Load())
	last := fake.lastBodies[len(fake.lastBodies)-1]
	assert.Contains(t, last, "<string>es_PE</string>")
	assert.Contains(t, last, "<string>account.move.line</string>")
}

func TestOdooClientRejectedLogin(t *testing.T) {
	srv := httptest.NewServer(&fakeOdoo{uid: "<boolean>0</boolean>"})
	defer srv.Close()

	client := newTestClient(t, srv, time.Second)
	_, err := client.Count(context.Background(), ModelInvoice, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOffline)
	assert.True(t, IsUnavailable(err))
	assert.False(t, client.Online())
}

func TestOdooClientTimeout(t *testing.T) {
	srv := httptest.NewServer(&fakeOdoo{uid: "<int>7</int>", delay: 300 * time.Millisecond})
	defer srv.Close()

	client := newTestClient(t, srv, 50*time.Millisecond)
	start := time.Now()
	_, err := client.Count(context.Background(), ModelInvoice, nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestOdooClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(&fakeOdoo{uid: "<int>7</int>"})
	srv.Close()

	client := newTestClient(t, srv, 200*time.Millisecond)
	_, err := client.SearchRead(context.Background(), ModelInvoice, nil, ReadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestOdooClientNotConfigured(t *testing.T) {
	client, err := NewOdooClient(Config{}, nil, nil)
	require.NoError(t, err)
	_, err = client.Count(context.Background(), ModelInvoice, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, client.Online())
}

package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/internquest/backend/apps/api/echo"
	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/migration"
	"github.com/internquest/backend/core/notification"
	"github.com/internquest/backend/core/user"
	"github.com/internquest/backend/services/email"
	"github.com/internquest/backend/storage/docstore/inmem"
	"github.com/internquest/backend/tests"
)

type fixture struct {
	srv     Server
	conf    *core.Config
	ids     *identity.Service
	store   *inmemstore.Store
	mailSvc *emailsvc.ConsoleService
	gateway *fakeGateway
	logger  *testutil.Logger
}

func setup(t *testing.T, configure ...func(*core.Config)) *fixture {
	conf := testutil.Config()
	for _, fn := range configure {
		fn(conf)
	}
	tmpls, err := core.ParseTemplates(conf)
	if err != nil {
		t.Fatalf("ParseTemplates() failed: %v", err)
	}

	f := &fixture{
		conf:    conf,
		ids:     testutil.NewIdentityService(conf),
		store:   testutil.NewDocStore(),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, tmpls),
		gateway: new(fakeGateway),
		logger:  new(testutil.Logger),
	}
	validator := core.NewValidator()
	f.srv = NewServer(&Options{
		Conf:            conf,
		DisableReqLogs:  true,
		Logger:          f.logger,
		Validator:       validator,
		IdentitySvc:     f.ids,
		UserSvc:         user.NewService(f.ids, f.store, f.mailSvc, validator, f.logger, conf),
		MigrationEngine: migration.NewEngine(f.store, validator, f.logger, conf),
		NotificationSvc: notification.NewService(f.store, f.gateway, validator, f.logger, conf),
	})
	return f
}

// console creates a console identity with its profile and returns its ID token.
func (f *fixture) console(t *testing.T, email, role string) (identity.Identity, string) {
	id := testutil.CreateIdentity(t, f.ids, email, email, role, "")
	f.store.Put("users", id.UID, map[string]interface{}{"email": id.Email, "role": role})
	return id, testutil.Token(t, f.ids, id)
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []core.PushMessage
	err  error
}

func (g *fakeGateway) Send(_ context.Context, messages []core.PushMessage) ([]core.PushTicket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.sent = append(g.sent, messages...)
	tickets := make([]core.PushTicket, len(messages))
	for i := range tickets {
		tickets[i] = core.PushTicket{Status: "ok", ID: "ticket"}
	}
	return tickets, nil
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	header   map[string]string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (tt httpTest) run(t *testing.T, srv Server) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodPost
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	for k, v := range tt.header {
		req.Header.Set(k, v)
	}
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
	return rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

// callableBody wraps data in the callable envelope.
func callableBody(t *testing.T, data interface{}) []byte {
	return marshallObj(t, map[string]interface{}{"data": data})
}

func callableErr(kind core.Kind, msg string) []byte {
	b, _ := json.Marshal(map[string]interface{}{"error": map[string]interface{}{"status": kind, "message": msg}})
	return b
}

func httpErr(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var data map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

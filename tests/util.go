// Package testutil holds fixtures shared by the test suites.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/storage/database/inmem"
	"github.com/internquest/backend/storage/docstore/inmem"
)

// Config returns a configuration with the defaults of a TEST run, independent of the environment.
func Config() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "InternQuest",
		SecretKey:                 "test-secret-key",
		ProfileCollection:         "users",
		CanonicalField:            "studentId",
		LegacyField:               "studentNumber",
		MigrationCollections:      []string{"users", "students"},
		NotificationCollection:    "notifications",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		PushURL:                   "https://exp.host/--/api/v2/push/send",
		Server: core.ServerConfig{
			Host:               "console.internquest.test",
			Address:            ":0",
			JWTExpirationDelta: time.Hour,
			AllowedOrigins:     []string{"*"},
		},
		Mail: core.MailConfig{
			From: "noreply@internquest.test",
		},
	}
}

// NewIdentityService returns an identity service over an empty in-memory repository.
func NewIdentityService(conf *core.Config) *identity.Service {
	return identity.NewService(inmemdb.NewIdentityRepository(inmemdb.Open()), conf)
}

// NewDocStore returns an empty in-memory document store that is not flagged as emulator.
func NewDocStore() *inmemstore.Store {
	return inmemstore.New(false)
}

// CreateIdentity creates an identity holding role. An empty pwd leaves the password unset.
func CreateIdentity(t *testing.T, svc *identity.Service, email, name, role, pwd string) identity.Identity {
	ctx := context.Background()
	id, err := svc.CreateUser(ctx, identity.NewIdentity{Email: email, DisplayName: name, Password: pwd, EmailVerified: true})
	if err != nil {
		t.Fatalf("CreateIdentity() failed: %v", err)
	}
	if role != "" {
		if err := svc.SetCustomClaims(ctx, id.UID, identity.CustomClaims{Role: role}); err != nil {
			t.Fatalf("CreateIdentity() failed: %v", err)
		}
	}
	id, err = svc.GetUser(ctx, id.UID)
	if err != nil {
		t.Fatalf("CreateIdentity() failed: %v", err)
	}
	return id
}

// Token issues an ID token for id.
func Token(t *testing.T, svc *identity.Service, id identity.Identity) string {
	token, err := svc.IssueIDToken(id)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}

// LogEntry is one event recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records events instead of reporting them.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Levels returns the messages logged at level.
func (l *Logger) Levels(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var msgs []string
	for _, e := range l.Entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

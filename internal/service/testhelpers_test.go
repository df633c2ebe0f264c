package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"backend/internal/model"
	"backend/internal/worksheet"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Account{},
		&model.Matter{},
		&model.ActivityLine{},
		&model.AuditLog{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role string) *model.User {
	t.Helper()
	u := &model.User{
		Username: "u-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@firm.test",
		FullName: "Test User",
		Password: "x",
		Role:     role,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedAccount(t *testing.T, db *gorm.DB, title, category string) *model.Account {
	t.Helper()
	a := &model.Account{Title: title, Category: category}
	require.NoError(t, db.Create(a).Error)
	return a
}

func actorFor(u *model.User) worksheet.ActorContext {
	return worksheet.ActorContext{ID: u.ID, Role: u.Role, DisplayName: u.DisplayName()}
}

func auditActions(t *testing.T, db *gorm.DB, entityID string) []string {
	t.Helper()
	var logs []model.AuditLog
	require.NoError(t, db.Where("entity_id = ?", entityID).Order("created_at asc").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

// fakeBroadcaster records pushed events.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) BroadcastEvent(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeStore is an in-memory object store recording removals.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Upload(ctx context.Context, bucket, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+":"+path] = data
	return nil
}

func (f *fakeStore) Open(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+":"+path]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Remove(ctx context.Context, bucket string, paths []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.objects, bucket+":"+p)
		f.removed = append(f.removed, bucket+":"+p)
	}
	return 0
}

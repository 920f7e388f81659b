package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// admissionLockKey is the pg_advisory_xact_lock key guarding admission.
// One key for every user: the global distinct-user cap couples all users.
const admissionLockKey int64 = 0x5e551042

func newSessionStore(db *gorm.DB) *sessionStore {
	return &sessionStore{
		db: db,
	}
}

type sessionStore struct {
	db *gorm.DB
}

func (s *sessionStore) Transact(ctx context.Context, fn func(tx storage.SessionTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", admissionLockKey).Error; err != nil {
			return storage.Unavailable(err, "failed to acquire admission lock")
		}
		return fn(&sessionTx{db: tx})
	})
	return err
}

func (s *sessionStore) Touch(ctx context.Context, userID, instanceID string, now, cutoff time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("user_id = ? AND client_instance_id = ? AND last_activity >= ?", userID, instanceID, cutoff).
		Update("last_activity", gorm.Expr("GREATEST(last_activity, ?)", now))
	if result.Error != nil {
		return false, storage.Unavailable(result.Error, "failed to touch session")
	}
	return result.RowsAffected > 0, nil
}

func (s *sessionStore) Delete(ctx context.Context, userID, instanceID string) (bool, error) {
	return deleteSession(s.db.WithContext(ctx), userID, instanceID)
}

func (s *sessionStore) DeleteUser(ctx context.Context, userID string) ([]models.ActiveSession, error) {
	var removed []models.ActiveSession
	if err := s.db.WithContext(ctx).Clauses(clause.Returning{}).
		Where("user_id = ?", userID).
		Delete(&removed).Error; err != nil {
		return nil, storage.Unavailable(err, "failed to delete user sessions")
	}
	return removed, nil
}

// Reap deletes in one statement so a heartbeat committed before the
// delete sees its row survive when its timestamp is >= cutoff.
func (s *sessionStore) Reap(ctx context.Context, cutoff time.Time) ([]models.ActiveSession, error) {
	var removed []models.ActiveSession
	if err := s.db.WithContext(ctx).Clauses(clause.Returning{}).
		Where("last_activity < ?", cutoff).
		Delete(&removed).Error; err != nil {
		return nil, storage.Unavailable(err, "failed to reap sessions")
	}
	return removed, nil
}

func (s *sessionStore) CountLive(ctx context.Context, userID, instanceID string, cutoff time.Time) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("user_id = ? AND last_activity >= ?", userID, cutoff)
	if instanceID != "" {
		q = q.Where("client_instance_id = ?", instanceID)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, storage.Unavailable(err, "failed to count sessions")
	}
	return count, nil
}

func (s *sessionStore) CountLiveUsers(ctx context.Context, cutoff time.Time) (int64, error) {
	return countLiveUsers(s.db.WithContext(ctx), cutoff)
}

func (s *sessionStore) CountLiveSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("last_activity >= ?", cutoff).
		Count(&count).Error; err != nil {
		return 0, storage.Unavailable(err, "failed to count sessions")
	}
	return count, nil
}

func (s *sessionStore) ListLiveUsers(ctx context.Context, cutoff time.Time, offset, limit int) ([]storage.UserSessions, int64, error) {
	db := s.db.WithContext(ctx)

	total, err := countLiveUsers(db, cutoff)
	if err != nil {
		return nil, 0, err
	}

	var userIDs []string
	if err := db.Model(&models.ActiveSession{}).
		Where("last_activity >= ?", cutoff).
		Group("user_id").
		Order("MAX(last_activity) DESC, user_id").
		Offset(offset).
		Limit(limit).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, 0, storage.Unavailable(err, "failed to list live users")
	}
	if len(userIDs) == 0 {
		return []storage.UserSessions{}, total, nil
	}

	var rows []models.ActiveSession
	if err := db.Where("user_id IN ? AND last_activity >= ?", userIDs, cutoff).
		Order("last_activity DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, storage.Unavailable(err, "failed to fetch live sessions")
	}

	byUser := make(map[string][]models.ActiveSession, len(userIDs))
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}
	out := make([]storage.UserSessions, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, storage.UserSessions{UserID: id, Sessions: byUser[id]})
	}
	return out, total, nil
}

type sessionTx struct {
	db *gorm.DB
}

func (t *sessionTx) Find(userID, instanceID string) (*models.ActiveSession, error) {
	var row models.ActiveSession
	if err := t.db.Where("user_id = ? AND client_instance_id = ?", userID, instanceID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable(err, "failed to find session")
	}
	return &row, nil
}

func (t *sessionTx) ListLive(userID string, cutoff time.Time) ([]models.ActiveSession, error) {
	var rows []models.ActiveSession
	if err := t.db.Where("user_id = ? AND last_activity >= ?", userID, cutoff).
		Order("last_activity DESC").
		Find(&rows).Error; err != nil {
		return nil, storage.Unavailable(err, "failed to list user sessions")
	}
	return rows, nil
}

func (t *sessionTx) CountLiveUsers(cutoff time.Time) (int64, error) {
	return countLiveUsers(t.db, cutoff)
}

func (t *sessionTx) ReapUser(userID string, cutoff time.Time) ([]models.ActiveSession, error) {
	var removed []models.ActiveSession
	if err := t.db.Clauses(clause.Returning{}).
		Where("user_id = ? AND last_activity < ?", userID, cutoff).
		Delete(&removed).Error; err != nil {
		return nil, storage.Unavailable(err, "failed to reap user sessions")
	}
	return removed, nil
}

func (t *sessionTx) Upsert(s *models.ActiveSession) error {
	if s.ClientInstanceID == "" {
		s.ClientInstanceID = models.DefaultClientInstanceID
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "client_instance_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_activity": gorm.Expr("GREATEST(active_sessions.last_activity, EXCLUDED.last_activity)"),
			"ip_address":    gorm.Expr("EXCLUDED.ip_address"),
			"user_agent":    gorm.Expr("EXCLUDED.user_agent"),
		}),
	}).Create(s).Error
	if err != nil {
		return storage.Unavailable(err, "failed to upsert session")
	}
	return nil
}

func (t *sessionTx) Delete(userID, instanceID string) (bool, error) {
	return deleteSession(t.db, userID, instanceID)
}

func deleteSession(db *gorm.DB, userID, instanceID string) (bool, error) {
	result := db.Where("user_id = ? AND client_instance_id = ?", userID, instanceID).
		Delete(&models.ActiveSession{})
	if result.Error != nil {
		return false, storage.Unavailable(result.Error, "failed to delete session")
	}
	return result.RowsAffected > 0, nil
}

func countLiveUsers(db *gorm.DB, cutoff time.Time) (int64, error) {
	var count int64
	if err := db.Model(&models.ActiveSession{}).
		Where("last_activity >= ?", cutoff).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, storage.Unavailable(err, "failed to count live users")
	}
	return count, nil
}

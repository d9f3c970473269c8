package db

import (
	"context"

	"rfqmarket/models"
)

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	n.CreatedAt = s.now()
	query := s.q(`
        INSERT INTO notifications (id, user_id, type, title, body, metadata, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Metadata, n.Read, n.CreatedAt)
	return err
}

func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	query := s.q(`
        SELECT id, user_id, type, title, body, metadata, is_read, created_at
        FROM notifications WHERE user_id = ?
        ORDER BY created_at DESC, id
        LIMIT ?`)
	err := s.db.SelectContext(ctx, &list, query, userID, limit)
	return list, err
}

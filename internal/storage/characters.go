package storage

import (
	"context"
	"strings"

	"rpworld/backend/internal/models"
)

// CreateCharacter inserts a new character row.
func (s *Service) CreateCharacter(ctx context.Context, c *models.Character) error {
	return s.db(ctx).Create(c).Error
}

// GetCharacter returns the character with id or ErrNotFound.
func (s *Service) GetCharacter(ctx context.Context, id uint) (*models.Character, error) {
	var c models.Character
	if err := first(s.db(ctx), &c, "id = ?", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCharacterByName looks a character up case-insensitively.
func (s *Service) GetCharacterByName(ctx context.Context, name string) (*models.Character, error) {
	var c models.Character
	if err := first(s.db(ctx), &c, "name_key = ?", strings.ToLower(strings.TrimSpace(name))); err != nil {
		return nil, err
	}
	return &c, nil
}

// CharacterExists reports whether a character row exists.
func (s *Service) CharacterExists(ctx context.Context, id uint) (bool, error) {
	return exists(s.db(ctx), &models.Character{}, id)
}

// ListFactionMembers returns every character that belongs to a faction.
func (s *Service) ListFactionMembers(ctx context.Context) ([]models.Character, error) {
	var members []models.Character
	err := s.db(ctx).Where("faction_id IS NOT NULL").Order("id").Find(&members).Error
	return members, err
}

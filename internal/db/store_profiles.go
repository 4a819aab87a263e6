package db

import (
	"context"
	"fmt"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// GetProfile returns the profile attached to mk.
func (db *DB) GetProfile(ctx context.Context, mk string) (*models.Profile, error) {
	var p models.Profile
	err := db.q.QueryRow(ctx, `
		SELECT individual_mk, name, email, gender, gender_acc, is_bot, country_code
		FROM profiles
		WHERE individual_mk = $1
	`, mk).Scan(&p.IndividualMK, &p.Name, &p.Email, &p.Gender, &p.GenderAcc, &p.IsBot, &p.CountryCode)
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("profile for %q not found", mk)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UpdateProfile replaces the profile row of the given individual.
func (db *DB) UpdateProfile(ctx context.Context, p *models.Profile) error {
	tag, err := db.q.Exec(ctx, `
		UPDATE profiles
		SET name = $2, email = $3, gender = $4, gender_acc = $5, is_bot = $6, country_code = $7
		WHERE individual_mk = $1
	`, p.IndividualMK, p.Name, p.Email, p.Gender, p.GenderAcc, p.IsBot, p.CountryCode)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("profile for %q not found", p.IndividualMK)
	}
	return nil
}

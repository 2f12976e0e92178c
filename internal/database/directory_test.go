package database

import (
	"testing"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryPhone(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := t.Context()

	phone, err := db.PrimaryPhone(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, phone)

	now := time.Now()
	require.NoError(t, db.SaveConsent(ctx, &models.ConsentRecord{
		PatientID:   42,
		PhoneNumber: "+15551234567",
		OptedIn:     true,
		OptInMethod: models.ConsentMethodWebForm,
		OptInDate:   &now,
	}))

	phone, err = db.PrimaryPhone(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", phone)
}

func TestDisplayName(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := t.Context()

	name, err := db.DisplayName(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, db.SaveContact(ctx, &models.Contact{
		PatientID:       42,
		Channel:         models.ChannelSMS,
		ChannelIdentity: "+15551234567",
		DisplayName:     "Pat Example",
	}))

	name, err = db.DisplayName(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Pat Example", name)
}

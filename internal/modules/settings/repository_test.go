package settings

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

func newTestRepo(t *testing.T) *Repository {
	db := testingpkg.NewTestDB(t, "config")
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_GetSet(t *testing.T) {
	repo := newTestRepo(t)

	value, err := repo.Get(KeyCryptoSlippage)
	require.NoError(t, err)
	assert.Nil(t, value)

	desc := "slippage"
	require.NoError(t, repo.Set(KeyCryptoSlippage, "0.02", &desc))
	require.NoError(t, repo.Set(KeyCryptoSlippage, "0.03", nil))

	value, err = repo.Get(KeyCryptoSlippage)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "0.03", *value)

	var storedDesc string
	require.NoError(t, repo.db.QueryRow("SELECT description FROM settings WHERE key = ?", KeyCryptoSlippage).Scan(&storedDesc))
	assert.Equal(t, "slippage", storedDesc)
}

func TestRepository_TypedAccessors(t *testing.T) {
	repo := newTestRepo(t)

	f, err := repo.GetFloat("missing", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	require.NoError(t, repo.SetFloat("f", 0.0125))
	f, err = repo.GetFloat("f", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0125, f)

	require.NoError(t, repo.Set("bad", "abc", nil))
	f, err = repo.GetFloat("bad", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)

	require.NoError(t, repo.Set("i", "12.0", nil))
	i, err := repo.GetInt("i", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, i)

	for _, truthy := range []string{"true", "1", "YES", "On"} {
		require.NoError(t, repo.Set("b", truthy, nil))
		b, err := repo.GetBool("b", false)
		require.NoError(t, err)
		assert.True(t, b, truthy)
	}
	require.NoError(t, repo.SetBool("b", false))
	b, err := repo.GetBool("b", true)
	require.NoError(t, err)
	assert.False(t, b)
}

func TestRepository_GetAllAndDelete(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Set("a", "1", nil))
	require.NoError(t, repo.Set("b", "2", nil))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, repo.Delete("a"))
	require.NoError(t, repo.Delete("a"))

	all, err = repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, all)
}

func TestService_SetValidates(t *testing.T) {
	svc := NewService(newTestRepo(t), nil, zerolog.Nop())

	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr bool
	}{
		{"slippage ok", KeyCryptoSlippage, 0.05, false},
		{"slippage too high", KeyCryptoSlippage, 0.5, true},
		{"slippage negative", KeyCryptoSlippage, -0.01, true},
		{"slippage wrong type", KeyCryptoSlippage, "0.05", true},
		{"cooldown ok", KeyNotifyCooldownMinutes, 30.0, false},
		{"cooldown zero", KeyNotifyCooldownMinutes, 0.0, true},
		{"email toggle", KeyEmailEnabled, true, false},
		{"email wrong type", KeyEmailEnabled, 1.0, true},
		{"smtp port ok", KeySMTPPort, 465.0, false},
		{"smtp port unset", KeySMTPPort, 0.0, false},
		{"smtp port fractional", KeySMTPPort, 25.5, true},
		{"smtp port too high", KeySMTPPort, 70000.0, true},
		{"smtp host", KeySMTPHost, "mail.example.com", false},
		{"smtp password without key", KeySMTPPassword, "hunter2", true},
		{"unknown key", "nope", 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Set(tt.key, tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_GetAllOverlaysDefaults(t *testing.T) {
	svc := NewService(newTestRepo(t), nil, zerolog.Nop())

	require.NoError(t, svc.Set(KeyCryptoSlippage, 0.02))
	require.NoError(t, svc.Set(KeyEmailEnabled, true))

	all, err := svc.GetAll()
	require.NoError(t, err)
	assert.Equal(t, 0.02, all[KeyCryptoSlippage])
	assert.Equal(t, true, all[KeyEmailEnabled])
	assert.Equal(t, 360.0, all[KeyNotifyCooldownMinutes])
	assert.Equal(t, false, all[KeySMTPPasswordSet])
	assert.Len(t, all, len(SettingDefaults)+1)
}

func newSecretService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	box, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "secret.key"))
	require.NoError(t, err)
	repo := newTestRepo(t)
	return NewService(repo, box, zerolog.Nop()), repo
}

func TestService_SMTPPasswordIsEncryptedAndMasked(t *testing.T) {
	svc, repo := newSecretService(t)

	require.NoError(t, svc.Set(KeySMTPPassword, " hunter2 "))

	stored, err := repo.Get(KeySMTPPassword)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotContains(t, *stored, "hunter2")

	all, err := svc.GetAll()
	require.NoError(t, err)
	assert.Equal(t, PasswordMask, all[KeySMTPPassword])
	assert.Equal(t, true, all[KeySMTPPasswordSet])

	// Posting the mask back keeps the password
	require.NoError(t, svc.Set(KeySMTPPassword, PasswordMask))
	o, err := svc.SMTPOverride()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", o.Password)

	// Empty clears it
	require.NoError(t, svc.Set(KeySMTPPassword, ""))
	all, err = svc.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "", all[KeySMTPPassword])
	assert.Equal(t, false, all[KeySMTPPasswordSet])
}

func TestService_SMTPOverride(t *testing.T) {
	svc, repo := newSecretService(t)

	o, err := svc.SMTPOverride()
	require.NoError(t, err)
	assert.Empty(t, o.Host)
	assert.Zero(t, o.Port)
	assert.Empty(t, o.To)

	require.NoError(t, svc.Set(KeySMTPHost, " mail.example.com "))
	require.NoError(t, svc.Set(KeySMTPPort, 2525.0))
	require.NoError(t, svc.Set(KeySMTPUsername, "tracker"))
	require.NoError(t, svc.Set(KeySMTPPassword, "hunter2"))
	require.NoError(t, svc.Set(KeyMailFrom, "tracker@example.com"))
	require.NoError(t, svc.Set(KeyMailTo, "a@example.com, ,b@example.com"))

	o, err = svc.SMTPOverride()
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com", o.Host)
	assert.Equal(t, 2525, o.Port)
	assert.Equal(t, "tracker", o.Username)
	assert.Equal(t, "hunter2", o.Password)
	assert.Equal(t, "tracker@example.com", o.From)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, o.To)

	// A token sealed under another key is dropped, not returned as text
	require.NoError(t, repo.Set(KeySMTPPassword, "Zm9yZWlnbg==", nil))
	o, err = svc.SMTPOverride()
	require.NoError(t, err)
	assert.Empty(t, o.Password)
	assert.Equal(t, "mail.example.com", o.Host)
}

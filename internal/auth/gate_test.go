package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/storage/memstorage"
)

type gateFixture struct {
	gate     *Gate
	repo     *memstorage.APIKeyRepository
	recorder *memstorage.ActivityRecorder
	keys     *keymaterial.Manager
	now      time.Time
}

func newGateFixture(t *testing.T, opts ...GateOption) *gateFixture {
	t.Helper()

	keys, err := keymaterial.NewManager("test-hmac-secret")
	require.NoError(t, err)

	repo := memstorage.NewAPIKeyRepository()
	recorder := memstorage.NewActivityRecorder()

	f := &gateFixture{
		gate:     NewGate(repo, keys, recorder, zap.NewNop(), opts...),
		repo:     repo,
		recorder: recorder,
		keys:     keys,
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.gate.now = func() time.Time { return f.now }
	return f
}

// seedKey stores a key and returns the record plus the full presented
// credential.
func (f *gateFixture) seedKey(t *testing.T, mutate func(*apikey.APIKey)) (*apikey.APIKey, string) {
	t.Helper()

	keyID, secret, digest, err := f.keys.GenerateKeyPair()
	require.NoError(t, err)

	record := &apikey.APIKey{
		KeyID:      keyID,
		SecretHash: digest,
		Name:       "test key",
		Status:     apikey.StatusActive,
		Scopes:     []string{"read"},
	}
	if mutate != nil {
		mutate(record)
	}
	_, err = f.repo.Create(context.Background(), record)
	require.NoError(t, err)

	return record, keyID + "." + secret
}

func TestGateAuthenticateSuccess(t *testing.T) {
	f := newGateFixture(t)
	record, credential := f.seedKey(t, nil)

	got, err := f.gate.Authenticate(context.Background(), Request{
		PresentedSecret: credential,
		SourceIP:        "203.0.113.7",
		Path:            "/api/v1/portal/me",
	})
	require.NoError(t, err)
	assert.Equal(t, record.KeyID, got.KeyID)

	events := f.recorder.EventsOfType(activity.TypeAuthSuccess)
	require.Len(t, events, 1)
	assert.Equal(t, record.KeyID, events[0].KeyID)
	assert.Equal(t, "203.0.113.7", events[0].SourceIP)
}

func TestGateWrongSecretIndistinguishableFromUnknownKey(t *testing.T) {
	f := newGateFixture(t)
	record, credential := f.seedKey(t, nil)

	// right key id, wrong secret
	wrongSecret := record.KeyID + "." + "sk_" + makeFiller(48)
	_, errWrong := f.gate.Authenticate(context.Background(), Request{PresentedSecret: wrongSecret})

	// well-formed but unknown key id
	unknown := "ak_" + makeFiller(24) + "." + credential[len(record.KeyID)+1:]
	_, errUnknown := f.gate.Authenticate(context.Background(), Request{PresentedSecret: unknown})

	assert.ErrorIs(t, errWrong, ierr.ErrAPIKeyNotFound)
	assert.ErrorIs(t, errUnknown, ierr.ErrAPIKeyNotFound)
	assert.Equal(t, errWrong.Error(), errUnknown.Error(), "callers must not learn which key ids exist")
}

func makeFiller(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestGateMalformedCredential(t *testing.T) {
	f := newGateFixture(t)
	f.seedKey(t, nil)

	for _, presented := range []string{"", "garbage", "ak_short.sk_short"} {
		_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: presented})
		assert.ErrorIs(t, err, ierr.ErrAPIKeyNotFound, "input %q", presented)
	}

	events := f.recorder.EventsOfType(activity.TypeAuthFailure)
	assert.Len(t, events, 3)
}

func TestGateExpiryOverridesStatus(t *testing.T) {
	f := newGateFixture(t)
	past := f.now.Add(-time.Hour)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusActive
		k.ExpiresAt = &past
	})

	_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.ErrorIs(t, err, ierr.ErrAPIKeyExpired, "expiry is time-derived, status is not trusted")
}

func TestGateRevokedKey(t *testing.T) {
	f := newGateFixture(t)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusRevoked
	})

	_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.ErrorIs(t, err, ierr.ErrAPIKeyRevoked)
}

func TestGateRevokedKeyStaysRevokedPastExpiry(t *testing.T) {
	f := newGateFixture(t)
	past := f.now.Add(-time.Hour)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusRevoked
		k.ExpiresAt = &past
	})

	_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.ErrorIs(t, err, ierr.ErrAPIKeyRevoked, "stored status wins over the lapsed expiry timestamp")
}

func TestGateSuspendedKey(t *testing.T) {
	f := newGateFixture(t)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusSuspended
	})

	_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.ErrorIs(t, err, ierr.ErrAPIKeySuspended)
}

func TestGateRotationGraceStillAuthenticates(t *testing.T) {
	f := newGateFixture(t)
	graceEnd := f.now.Add(72 * time.Hour)
	record, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusSuspended
		k.ExpiresAt = &graceEnd
	})

	got, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	require.NoError(t, err)
	assert.Equal(t, record.KeyID, got.KeyID)

	events := f.recorder.EventsOfType(activity.TypeAuthSuccess)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Details["deprecated"], "grace use is flagged for observability")

	// once the grace window lapses the key is expired
	f.now = graceEnd.Add(time.Minute)
	_, err = f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.ErrorIs(t, err, ierr.ErrAPIKeyExpired)
}

func TestGateIPAllowlist(t *testing.T) {
	f := newGateFixture(t)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.AllowedIPs = []string{"203.0.113.7", "198.51.100.2"}
	})

	_, err := f.gate.Authenticate(context.Background(), Request{
		PresentedSecret: credential,
		SourceIP:        "192.0.2.99",
	})
	assert.ErrorIs(t, err, ierr.ErrIPNotAllowed)

	_, err = f.gate.Authenticate(context.Background(), Request{
		PresentedSecret: credential,
		SourceIP:        "198.51.100.2",
	})
	assert.NoError(t, err)
}

func TestGateCacheServesRepeatLookups(t *testing.T) {
	f := newGateFixture(t, WithCache(16, time.Minute))
	record, credential := f.seedKey(t, nil)

	_, err := f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	require.NoError(t, err)

	// the record is now cached; a repeat succeeds without touching the store
	assert.True(t, f.gate.cache.Contains(record.KeyID))
	_, err = f.gate.Authenticate(context.Background(), Request{PresentedSecret: credential})
	assert.NoError(t, err)
}

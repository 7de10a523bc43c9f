package pool

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/stretchr/testify/require"
)

type testOwner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestOwner(t *testing.T) testOwner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return testOwner{pub: pub, priv: priv}
}

func (o testOwner) base58() string { return cryptoutil.EncodeBase58(o.pub) }

func (o testOwner) sign(msg string) string {
	sig := ed25519.Sign(o.priv, []byte(msg))
	return cryptoutil.EncodeBase58(sig)
}

// decryptSigFor signs the DECRYPT_POOL_KEY_{id} challenge for the pool id
// that will be derived from signing createMsg, mirroring how a client
// derives the id locally before ever calling the server.
func decryptSigFor(t *testing.T, o testOwner, createMsg string) string {
	t.Helper()
	seed := cryptoutil.DerivePoolSeed(o.base58(), o.sign(createMsg))
	pub, _ := cryptoutil.DeriveKeypair(seed)
	poolID := cryptoutil.EncodeBase58(pub)
	return o.sign(domain.DecryptChallenge(poolID))
}

func newTestRegistry() *Registry {
	r := New(store.NewMemory(), store.NewMemory(), store.NewMemory(), nil, logging.NewDefault())
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return r
}

func TestGetOrCreateLegacyIsDeterministicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	msg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	p1, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(msg), msg, decryptSigFor(t, owner, msg))
	require.NoError(t, err)
	require.Equal(t, domain.PoolTypeLegacy, p1.Type)

	expected := cryptoutil.EncodeBase58(func() ed25519.PublicKey {
		seed := cryptoutil.DerivePoolSeed(owner.base58(), owner.sign(msg))
		pub, _ := cryptoutil.DeriveKeypair(seed)
		return pub
	}())
	require.Equal(t, expected, p1.PublicKey)

	msg2 := domain.FormatCreatePool(owner.base58(), 1700000000500)
	p2, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(msg2), msg2, decryptSigFor(t, owner, msg2))
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID, "get_or_create must be idempotent")
}

func TestGetOrCreateLegacyRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)
	other := newTestOwner(t)

	msg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	_, err := r.GetOrCreateLegacy(ctx, owner.base58(), other.sign(msg), msg, decryptSigFor(t, owner, msg))
	require.Error(t, err)
}

func TestGetOrCreateMainRequiresLegacy(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	msg := domain.FormatMainPool(owner.base58(), 1700000000000)
	_, _, err := r.GetOrCreateMain(ctx, owner.base58(), owner.sign(msg), msg, decryptSigFor(t, owner, msg))
	require.Error(t, err)

	ce, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.HierarchyViolation, ce.Code)
}

func TestFundFromPoolRejectsInvalidEdges(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	legacy, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	mainMsg := domain.FormatMainPool(owner.base58(), 1700000000100)
	main, _, err := r.GetOrCreateMain(ctx, owner.base58(), owner.sign(mainMsg), mainMsg, decryptSigFor(t, owner, mainMsg))
	require.NoError(t, err)

	// Main -> Legacy is not a valid funding edge (P2).
	fundMsg := domain.FormatFundPool(main.ID, legacy.ID, "1000", 1700000000200)
	err = r.FundFromPool(ctx, main.ID, legacy.ID, 1000, owner.base58(), owner.sign(fundMsg), fundMsg)
	require.Error(t, err)

	ce, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.HierarchyViolation, ce.Code)
}

func TestFundFromPoolAcceptsLegacyToMain(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	legacy, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	mainMsg := domain.FormatMainPool(owner.base58(), 1700000000100)
	main, _, err := r.GetOrCreateMain(ctx, owner.base58(), owner.sign(mainMsg), mainMsg, decryptSigFor(t, owner, mainMsg))
	require.NoError(t, err)

	fundMsg := domain.FormatFundPool(legacy.ID, main.ID, "1000", 1700000000200)
	err = r.FundFromPool(ctx, legacy.ID, main.ID, 1000, owner.base58(), owner.sign(fundMsg), fundMsg)
	require.NoError(t, err)
}

func TestDeleteCustomRejectsLegacy(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	legacy, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	delMsg := domain.FormatDeletePool(legacy.ID, owner.base58(), 1700000000300)
	err = r.DeleteCustom(ctx, legacy.ID, owner.base58(), owner.sign(delMsg), delMsg)
	require.Error(t, err)

	ce, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.HierarchyViolation, ce.Code)
}

func TestDeleteCustomRejectsLinkedAgents(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	_, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	mainMsg := domain.FormatMainPool(owner.base58(), 1700000000100)
	_, _, err = r.GetOrCreateMain(ctx, owner.base58(), owner.sign(mainMsg), mainMsg, decryptSigFor(t, owner, mainMsg))
	require.NoError(t, err)

	customMsg := domain.FormatCustomPool(owner.base58(), 1700000000200)
	custom, _, err := r.CreateCustom(ctx, owner.base58(), owner.sign(customMsg), customMsg, decryptSigFor(t, owner, customMsg))
	require.NoError(t, err)

	confirmed, err := r.ConfirmCustom(ctx, custom.ID, "fake-sig", owner.base58())
	require.NoError(t, err)

	confirmed.AgentCount = 1
	require.NoError(t, r.save(ctx, confirmed))

	delMsg := domain.FormatDeletePool(confirmed.ID, owner.base58(), 1700000000400)
	err = r.DeleteCustom(ctx, confirmed.ID, owner.base58(), owner.sign(delMsg), delMsg)
	require.Error(t, err)
}

func TestCreateCustomRequiresMain(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	customMsg := domain.FormatCustomPool(owner.base58(), 1700000000000)
	_, _, err := r.CreateCustom(ctx, owner.base58(), owner.sign(customMsg), customMsg, decryptSigFor(t, owner, customMsg))
	require.Error(t, err)
}

func TestListReturnsAllOwnerPools(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	_, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	mainMsg := domain.FormatMainPool(owner.base58(), 1700000000100)
	_, _, err = r.GetOrCreateMain(ctx, owner.base58(), owner.sign(mainMsg), mainMsg, decryptSigFor(t, owner, mainMsg))
	require.NoError(t, err)

	pools, err := r.List(ctx, owner.base58())
	require.NoError(t, err)
	require.Len(t, pools, 2)
}

func TestExportKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	owner := newTestOwner(t)

	createMsg := domain.FormatCreatePool(owner.base58(), 1700000000000)
	legacy, err := r.GetOrCreateLegacy(ctx, owner.base58(), owner.sign(createMsg), createMsg, decryptSigFor(t, owner, createMsg))
	require.NoError(t, err)

	exportMsg := domain.FormatExportKey(legacy.ID, owner.base58(), 1700000000500)
	decryptMsg := domain.DecryptChallenge(legacy.ID)

	secretB58, err := r.ExportKey(ctx, legacy.ID, owner.base58(), owner.sign(exportMsg), exportMsg, owner.sign(decryptMsg))
	require.NoError(t, err)
	require.NotEmpty(t, secretB58)
}

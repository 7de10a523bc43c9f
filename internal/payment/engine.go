package payment

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aegix-network/aegix/internal/audit"
	"github.com/aegix-network/aegix/internal/chainrpc"
	"github.com/aegix-network/aegix/internal/cryptoutil"
	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/facilitator"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/metrics"
	"github.com/aegix-network/aegix/internal/pool"
	"github.com/aegix-network/aegix/internal/recovery"
	"github.com/aegix-network/aegix/internal/session"
	"github.com/aegix-network/aegix/internal/store"
	"github.com/aegix-network/aegix/internal/vault"
	"github.com/google/uuid"
)

// ChallengeSkewMillis bounds how far a transfer challenge's timestamp may
// drift from server time, matching every other challenge-gated mutation.
const ChallengeSkewMillis int64 = 2 * 60 * 1000

// Engine implements PaymentEngine: mode selection, the compressed-privacy
// leg sequence, the direct fallback, and per-leg failure handling, per
// spec §4.6. Grounded on internal/pool.Registry's per-key-locked
// load/save shape for PaymentSession persistence.
type Engine struct {
	coll         store.Collection
	pools        *pool.Registry
	sessions     *session.Manager
	recoveryPool *recovery.Pool
	compression  *chainrpc.CompressionClient
	chain        *chainrpc.ChainClient
	facilitator  *facilitator.Client
	audit        *audit.Ledger
	metrics      *metrics.Metrics
	log          *logging.Logger
	now          func() time.Time

	recoveryAddress string
	recoverySigner  ed25519.PrivateKey

	locks sync.Map // payment session id -> *sync.Mutex
}

// Config bundles Engine's collaborators.
type Config struct {
	Store           store.Collection
	Pools           *pool.Registry
	Sessions        *session.Manager
	RecoveryPool    *recovery.Pool
	Compression     *chainrpc.CompressionClient
	Chain           *chainrpc.ChainClient
	Facilitator     *facilitator.Client
	Audit           *audit.Ledger
	Metrics         *metrics.Metrics
	Log             *logging.Logger
	RecoveryAddress string
	RecoverySigner  ed25519.PrivateKey
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		coll:            cfg.Store,
		pools:           cfg.Pools,
		sessions:        cfg.Sessions,
		recoveryPool:    cfg.RecoveryPool,
		compression:     cfg.Compression,
		chain:           cfg.Chain,
		facilitator:     cfg.Facilitator,
		audit:           cfg.Audit,
		metrics:         cfg.Metrics,
		log:             cfg.Log,
		now:             time.Now,
		recoveryAddress: cfg.RecoveryAddress,
		recoverySigner:  cfg.RecoverySigner,
	}
}

// ExecuteInput is PaymentEngine's input contract: (pool, recipient,
// amount, session?). When SessionPublicKey is empty the caller must be
// the pool's owner and OwnerSignature must verify; otherwise
// SessionSignature must verify against the session's own public key and
// session.Debit is applied before any on-chain action.
type ExecuteInput struct {
	Owner            string
	PoolID           string
	Recipient        string
	Mint             string
	Amount           uint64
	ChallengeMsg     string
	OwnerSignature   string
	SessionPublicKey string
	SessionSignature string
	DecryptSignature string
}

func paymentKey(id string) string { return "payment:" + id }

func (e *Engine) lockFor(id string) *sync.Mutex {
	l, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (e *Engine) load(ctx context.Context, id string) (*Session, error) {
	data, ok, err := e.coll.Get(ctx, paymentKey(id))
	if err != nil {
		return nil, errors.Internal(err, "payment: load %s", id)
	}
	if !ok {
		return nil, errors.Invalid("payment: unknown payment session %s", id)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Internal(err, "payment: decode %s", id)
	}
	return &s, nil
}

func (e *Engine) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = e.now()
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Internal(err, "payment: encode %s", s.ID)
	}
	if err := e.coll.Put(ctx, paymentKey(s.ID), data); err != nil {
		return errors.Internal(err, "payment: persist %s", s.ID)
	}
	return nil
}

// Get returns a payment session's current record.
func (e *Engine) Get(ctx context.Context, id string) (*Session, error) {
	return e.load(ctx, id)
}

// Execute authorizes and runs one payment session end to end, returning
// the final Session record whether it completed or failed. Authorization
// failures (bad signature, session limit violation) return before any
// payment session record is created at all.
func (e *Engine) Execute(ctx context.Context, in ExecuteInput) (*Session, error) {
	if err := e.authorize(ctx, in); err != nil {
		return nil, err
	}

	mode, err := e.chooseMode(ctx, in.Recipient, in.Mint)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		Owner:     in.Owner,
		PoolID:    in.PoolID,
		Recipient: in.Recipient,
		Mint:      in.Mint,
		Amount:    in.Amount,
		Mode:      mode,
		Status:    domain.PaymentInitialized,
		CreatedAt: e.now(),
	}
	if in.SessionPublicKey != "" {
		s.SessionKeyID = in.SessionPublicKey
	}
	s.Compressed = e.compressionAvailable(ctx)
	if err := e.save(ctx, s); err != nil {
		return nil, err
	}

	lock := e.lockFor(s.ID)
	lock.Lock()
	defer lock.Unlock()

	if s.Compressed {
		e.runCompressedFlow(ctx, s, in)
	} else {
		e.runDirectFlow(ctx, s, in)
	}

	if e.metrics != nil {
		e.metrics.PaymentsTotal.WithLabelValues(string(s.Status), string(s.Mode)).Inc()
	}
	return s, nil
}

func (e *Engine) authorize(ctx context.Context, in ExecuteInput) error {
	if in.Amount == 0 {
		return errors.Invalid("payment: amount must be positive")
	}

	if in.SessionPublicKey != "" {
		challenge, err := domain.VerifyChallenge(domain.ChallengeTransfer, in.ChallengeMsg, in.SessionPublicKey, in.SessionSignature, nowMillis(e.now()), ChallengeSkewMillis)
		if err != nil {
			return err
		}
		if err := verifyTransferFields(challenge, in); err != nil {
			return err
		}
		if _, err := e.sessions.Debit(ctx, in.SessionPublicKey, in.Amount); err != nil {
			return err
		}
		return nil
	}

	challenge, err := domain.VerifyChallenge(domain.ChallengeTransfer, in.ChallengeMsg, in.Owner, in.OwnerSignature, nowMillis(e.now()), ChallengeSkewMillis)
	if err != nil {
		return err
	}
	return verifyTransferFields(challenge, in)
}

// verifyTransferFields binds a verified AEGIX_TRANSFER challenge to the
// recipient and amount actually being executed, so a validly signed
// challenge for one transfer can never be replayed against another.
func verifyTransferFields(c *domain.Challenge, in ExecuteInput) error {
	if c.Target != in.Recipient {
		return errors.Unauthorized("payment: challenge target does not match recipient")
	}
	if c.Amount != fmt.Sprintf("%d", in.Amount) {
		return errors.Unauthorized("payment: challenge amount does not match requested amount")
	}
	return nil
}

func nowMillis(t time.Time) int64 { return t.UnixMilli() }

// chooseMode tries Gasless iff the facilitator advertises the recipient's
// network and the recipient already has a token account for mint, per
// §4.6's mode-selection rule; any failure probing either condition falls
// back to Direct rather than blocking the payment.
func (e *Engine) chooseMode(ctx context.Context, recipient, mint string) (domain.PaymentMode, error) {
	if e.facilitator == nil {
		return domain.ModeDirect, nil
	}

	caps, err := e.facilitator.Capabilities(ctx)
	if err != nil {
		e.log.Component("payment").WithField("error", err.Error()).Warn("facilitator capability probe failed, falling back to direct mode")
		return domain.ModeDirect, nil
	}
	supported := false
	for _, n := range caps.SupportedNetworks {
		if n == chainNetwork {
			supported = true
			break
		}
	}
	if !supported {
		return domain.ModeDirect, nil
	}

	if e.chain != nil {
		exists, err := e.chain.TokenAccountExists(ctx, recipient, mint)
		if err != nil || !exists {
			return domain.ModeDirect, nil
		}
	}
	return domain.ModeGasless, nil
}

// compressionAvailable reports whether the compressed-privacy flow can be
// attempted at all; a down or unconfigured compression provider falls
// back to the direct, non-compressed flow rather than failing the
// payment outright.
func (e *Engine) compressionAvailable(ctx context.Context) bool {
	if e.compression == nil {
		return false
	}
	health, err := e.compression.Health(ctx)
	if err != nil {
		return false
	}
	return health.Healthy
}

// chainNetwork is the single network this deployment targets; a
// multi-network deployment would thread this through Config instead.
const chainNetwork = "solana-mainnet"

func deriveTokenAccount(owner, mint string) string {
	return cryptoutil.EncodeBase58(cryptoutil.Hash256([]byte(owner + ":" + mint)))
}

// recoverySignerMaterial derives the key-material string vault.Seal expects
// from the Recovery Pool's own externally-provisioned signer, so a
// burner's private key can be escrowed for the reconciler without
// depending on the owner's (short-lived, never-persisted) signature.
func recoverySignerMaterial(signer ed25519.PrivateKey) string {
	return cryptoutil.EncodeBase58(signer)
}

// sealBurnerKey escrows a freshly generated burner's private key so
// ReconcileOrphans can later close and sweep the account even though the
// burner itself is single-use and its key is otherwise held only in the
// local stack frame that created it.
func (e *Engine) sealBurnerKey(priv ed25519.PrivateKey) (string, error) {
	sealed, err := vault.Seal(e.recoveryAddress, recoverySignerMaterial(e.recoverySigner), priv)
	if err != nil {
		return "", err
	}
	return vault.EncodeSealed(sealed), nil
}

func (e *Engine) unsealBurnerKey(s *Session) (ed25519.PrivateKey, error) {
	sealed, err := vault.DecodeSealed(s.SealedBurnerKey)
	if err != nil {
		return nil, err
	}
	unlocked, err := vault.Unseal(e.recoveryAddress, recoverySignerMaterial(e.recoverySigner), sealed)
	if err != nil {
		return nil, err
	}
	return unlocked.PrivateKey, nil
}

// ReconcileOrphans retries closing and sweeping burner token accounts left
// behind either by a payment that failed after its rent was already spent
// (leg 2 or leg 3) or by a Completed payment whose leg 4 close never
// confirmed inline. It is the scheduled counterpart to the per-leg
// handling in runCompressedFlow/runDirectFlow and is safe to call
// repeatedly: a session is skipped once its LegRecovery signature is
// recorded.
func (e *Engine) ReconcileOrphans(ctx context.Context) (int, error) {
	records, err := e.coll.List(ctx, "payment:")
	if err != nil {
		return 0, errors.Internal(err, "payment: list sessions for reconciliation")
	}

	swept := 0
	for _, rec := range records {
		var s Session
		if err := json.Unmarshal(rec.Value, &s); err != nil {
			continue
		}
		if s.BurnerPublicKey == "" || s.SealedBurnerKey == "" {
			continue
		}
		if !s.Compressed {
			// The direct flow's burner rent was advanced by the pool itself,
			// not reserved against the Recovery Pool, so closeAndSweep's
			// Recovery-Pool-owned destination account does not apply; its
			// own inline leg 4 is the only close path for that flow.
			continue
		}
		if _, recovered := s.ChainSignatures[domain.LegRecovery]; recovered {
			continue
		}
		needsSweep := s.Status == domain.PaymentFailed || s.Status == domain.PaymentCompleted
		if !needsSweep {
			continue
		}

		burnerPriv, err := e.unsealBurnerKey(&s)
		if err != nil {
			e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Warn("reconciler: failed to unseal burner key")
			continue
		}
		burnerATA := deriveTokenAccount(s.BurnerPublicKey, s.Mint)
		if err := e.closeAndSweep(ctx, &s, burnerPriv, burnerATA); err != nil {
			e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Warn("reconciler: close-and-sweep retry failed")
			continue
		}
		s.recordLeg(domain.LegRecovery, "reconciled")
		if err := e.save(ctx, &s); err != nil {
			e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Error("reconciler: failed to persist recovery")
			continue
		}
		swept++
	}
	return swept, nil
}

type signedEnvelope struct {
	TransactionBase64 string   `json:"transaction"`
	Signatures        []string `json:"signatures"`
}

// paymentRequirements is the other half of the payment-payload/
// payment-requirements pair a gasless settle call submits: it lets the
// facilitator verify the partially-signed transaction it was handed
// actually matches the transfer it was asked to sponsor, and its nonce
// (the payment session's own id) gives the facilitator an idempotency
// key against a resubmitted settle call.
type paymentRequirements struct {
	Network string `json:"network"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	PayTo   string `json:"payTo"`
	Nonce   string `json:"nonce"`
}

func signEnvelope(txBase64 string, signers ...ed25519.PrivateKey) string {
	env := signedEnvelope{TransactionBase64: txBase64}
	for _, signer := range signers {
		env.Signatures = append(env.Signatures, cryptoutil.Sign(signer, txBase64))
	}
	data, _ := json.Marshal(env)
	return string(data)
}

// runCompressedFlow executes the preferred 4-leg compressed-privacy flow.
// It mutates s in place and always leaves it in a terminal state
// (Completed or Failed) or, for the non-fatal leg 4 case, Completed with
// a pending reconciler follow-up.
func (e *Engine) runCompressedFlow(ctx context.Context, s *Session, in ExecuteInput) {
	al := e.log.Component("payment").WithField("payment_id", s.ID)

	burnerPub, burnerPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	s.BurnerPublicKey = cryptoutil.EncodeBase58(burnerPub)
	burnerATA := deriveTokenAccount(s.BurnerPublicKey, s.Mint)
	if sealed, err := e.sealBurnerKey(burnerPriv); err != nil {
		al.WithField("error", err.Error()).Warn("failed to escrow burner key; orphan reconciliation unavailable for this payment")
	} else {
		s.SealedBurnerKey = sealed
	}

	poolRecord, err := e.pools.Get(ctx, in.PoolID)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	poolSigner, err := e.pools.UnlockForSigning(ctx, in.PoolID, in.Owner, in.DecryptSignature)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}

	// Leg 1: Recovery Pool pays rent for the burner's token account, then
	// the pool authorizes a compressed transfer moving s.Amount of mint
	// into the burner's compressed balance so leg 2 can decompress it
	// under the burner's own ownership.
	if err := e.recoveryPool.Reserve(ctx, e.recoveryAddress, legTxID(s.ID, domain.LegFundSol), ataRentLamports); err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	createTx, err := e.chain.BuildCreateTokenAccount(ctx, s.BurnerPublicKey, s.Mint, e.recoveryAddress)
	if err != nil {
		e.recoveryPool.Release(ctx, e.recoveryAddress, legTxID(s.ID, domain.LegFundSol))
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	createSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(createTx, e.recoverySigner))
	if err != nil {
		e.recoveryPool.Release(ctx, e.recoveryAddress, legTxID(s.ID, domain.LegFundSol))
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, createSig); err != nil || !ok {
		e.recoveryPool.Release(ctx, e.recoveryAddress, legTxID(s.ID, domain.LegFundSol))
		e.fail(ctx, s, domain.LegFundSol, fmt.Errorf("burner ATA creation did not confirm"))
		return
	}
	e.recoveryPool.Commit(ctx, e.recoveryAddress, legTxID(s.ID, domain.LegFundSol), ataRentLamports)
	s.recordLeg(domain.LegFundSol, createSig)

	// From here on the burner's ATA already exists and its rent is spent,
	// so any failure orphans it for the reconciler rather than releasing
	// the (already-committed) leg-1 reservation.
	transferToBurner, err := e.compression.BuildCompressedTransfer(ctx, poolRecord.PublicKey, s.BurnerPublicKey, s.Mint, s.Amount)
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundSol, err)
		return
	}
	poolBurnerSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(transferToBurner.TransactionBase64, poolSigner))
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundSol, err)
		return
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, poolBurnerSig); err != nil || !ok {
		e.failOrphaned(ctx, s, domain.LegFundSol, fmt.Errorf("pool-to-burner compressed transfer did not confirm"))
		return
	}
	s.Status = domain.PaymentBurnerCreated
	e.appendAudit(ctx, s, domain.LegFundSol, poolBurnerSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 1")
	}

	// Leg 2: decompress into the burner's own token account. A failure
	// here leaves an orphaned, already-rent-paid burner ATA for the
	// reconciler to sweep; it is not retried inline.
	decompressBuild, err := e.compression.DecompressToSPL(ctx, s.BurnerPublicKey, s.Mint, burnerATA, s.Amount)
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundAsset, err)
		return
	}
	decompressSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(decompressBuild.TransactionBase64, e.recoverySigner, burnerPriv))
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundAsset, err)
		return
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, decompressSig); err != nil || !ok {
		e.failOrphaned(ctx, s, domain.LegFundAsset, fmt.Errorf("decompress did not confirm"))
		return
	}
	s.Status = domain.PaymentAssetInBurner
	s.recordLeg(domain.LegFundAsset, decompressSig)
	e.appendAudit(ctx, s, domain.LegFundAsset, decompressSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 2")
	}

	// Leg 3: burner pays recipient. sendPaymentLeg retries a Direct-mode
	// leg up to MaxPaymentLegRetries times and attempts a Gasless-mode leg
	// once; on failure the burner is swept back to the Recovery Pool and
	// the session is marked Failed.
	paymentSig, err := e.sendPaymentLeg(ctx, s, burnerPriv)
	if err != nil {
		e.sweepBurnerAfterFailedPayment(ctx, s, burnerPriv, burnerATA)
		e.fail(ctx, s, domain.LegPayment, err)
		return
	}
	s.Status = domain.PaymentSent
	s.recordLeg(domain.LegPayment, paymentSig)
	e.appendAudit(ctx, s, domain.LegPayment, paymentSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 3")
	}
	// The compressed flow's rent is reclaimed into the Recovery Pool, not
	// this pool (see closeAndSweep), so nothing is credited here.
	if err := e.pools.RecordPayment(ctx, in.PoolID, 0); err != nil {
		al.WithField("error", err.Error()).Warn("failed to record payment on pool")
	}

	// Leg 4: dust-check, close, sweep rent. Non-fatal on failure: the
	// payment is already Completed from the caller's perspective and a
	// background reconciler retries the close.
	s.Status = domain.PaymentCompleted
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist completion")
	}
	if err := e.closeAndSweep(ctx, s, burnerPriv, burnerATA); err != nil {
		al.WithField("error", err.Error()).Warn("leg 4 close-and-sweep failed, leaving for reconciler")
	} else {
		s.recordLeg(domain.LegRecovery, "closed")
		e.appendAudit(ctx, s, domain.LegRecovery, "")
		if err := e.save(ctx, s); err != nil {
			al.WithField("error", err.Error()).Error("failed to persist leg 4 completion")
		}
	}
}

// runDirectFlow implements the non-compressed fallback: the pool funds a
// fresh burner with native gas out of its own balance, sends the asset to
// it directly (no compression provider involved), the burner pays the
// recipient, and the burner account is closed with rent returned to the
// pool. The close runs inline, after the session is saved as Completed
// and before runDirectFlow returns, so the caller's latency includes it;
// it is not handed to a background task.
func (e *Engine) runDirectFlow(ctx context.Context, s *Session, in ExecuteInput) {
	al := e.log.Component("payment").WithField("payment_id", s.ID)

	burnerPub, burnerPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	s.BurnerPublicKey = cryptoutil.EncodeBase58(burnerPub)
	burnerATA := deriveTokenAccount(s.BurnerPublicKey, s.Mint)
	if sealed, err := e.sealBurnerKey(burnerPriv); err != nil {
		al.WithField("error", err.Error()).Warn("failed to escrow burner key; orphan reconciliation unavailable for this payment")
	} else {
		s.SealedBurnerKey = sealed
	}

	poolRecord, err := e.pools.Get(ctx, in.PoolID)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	poolSigner, err := e.pools.UnlockForSigning(ctx, in.PoolID, in.Owner, in.DecryptSignature)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}

	fundTx, err := e.chain.BuildNativeTransfer(ctx, poolRecord.PublicKey, s.BurnerPublicKey, burnerFundingLamports)
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	fundSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(fundTx, poolSigner))
	if err != nil {
		e.fail(ctx, s, domain.LegFundSol, err)
		return
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, fundSig); err != nil || !ok {
		e.fail(ctx, s, domain.LegFundSol, fmt.Errorf("burner funding did not confirm"))
		return
	}
	s.Status = domain.PaymentBurnerCreated
	s.recordLeg(domain.LegFundSol, fundSig)
	e.appendAudit(ctx, s, domain.LegFundSol, fundSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 1")
	}

	assetTx, err := e.chain.BuildTransferChecked(ctx, poolRecord.PublicKey, s.BurnerPublicKey, s.Mint, s.Amount, poolRecord.PublicKey)
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundAsset, err)
		return
	}
	assetSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(assetTx, poolSigner))
	if err != nil {
		e.failOrphaned(ctx, s, domain.LegFundAsset, err)
		return
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, assetSig); err != nil || !ok {
		e.failOrphaned(ctx, s, domain.LegFundAsset, fmt.Errorf("pool-to-burner transfer did not confirm"))
		return
	}
	s.Status = domain.PaymentAssetInBurner
	s.recordLeg(domain.LegFundAsset, assetSig)
	e.appendAudit(ctx, s, domain.LegFundAsset, assetSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 2")
	}

	var paymentSig string
	var lastErr error
	for attempt := 0; attempt < MaxPaymentLegRetries; attempt++ {
		payTx, err := e.chain.BuildTransferChecked(ctx, s.BurnerPublicKey, s.Recipient, s.Mint, s.Amount, s.BurnerPublicKey)
		if err != nil {
			lastErr = err
			continue
		}
		sig, err := e.chain.SubmitTransaction(ctx, signEnvelope(payTx, burnerPriv))
		if err != nil {
			lastErr = err
			s.RetryCount = attempt + 1
			continue
		}
		if ok, err := e.chain.ConfirmTransaction(ctx, sig); err != nil || !ok {
			lastErr = errors.Chain(err, "direct payment leg did not confirm")
			s.RetryCount = attempt + 1
			continue
		}
		paymentSig = sig
		lastErr = nil
		break
	}
	if paymentSig == "" {
		e.sweepBurnerAfterFailedPayment(ctx, s, burnerPriv, burnerATA)
		e.fail(ctx, s, domain.LegPayment, errors.Chain(lastErr, "payment: leg 3 exhausted retry budget"))
		return
	}
	s.Status = domain.PaymentSent
	s.recordLeg(domain.LegPayment, paymentSig)
	e.appendAudit(ctx, s, domain.LegPayment, paymentSig)
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist after leg 3")
	}

	s.Status = domain.PaymentCompleted
	if err := e.save(ctx, s); err != nil {
		al.WithField("error", err.Error()).Error("failed to persist completion")
	}

	// Leg 4: close the burner's token account, returning its rent to the
	// pool itself (unlike the compressed flow, this pool funded the rent
	// directly in leg 2, not the Recovery Pool). Non-fatal on failure,
	// same as the compressed flow's leg 4: the payment is already
	// Completed and recoveredLamports simply stays zero.
	var recoveredLamports uint64
	closeTx, err := e.chain.BuildCloseAccount(ctx, burnerATA, poolRecord.PublicKey, s.BurnerPublicKey)
	if err != nil {
		al.WithField("error", err.Error()).Warn("leg 4 close failed, burner account left open")
	} else if closeSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(closeTx, burnerPriv)); err != nil {
		al.WithField("error", err.Error()).Warn("leg 4 close submission failed, burner account left open")
	} else if ok, err := e.chain.ConfirmTransaction(ctx, closeSig); err != nil || !ok {
		al.Warn("leg 4 close did not confirm, burner account left open")
	} else {
		s.recordLeg(domain.LegRecovery, closeSig)
		e.appendAudit(ctx, s, domain.LegRecovery, closeSig)
		recoveredLamports = ataRentLamports
	}

	if err := e.pools.RecordPayment(ctx, in.PoolID, recoveredLamports); err != nil {
		al.WithField("error", err.Error()).Warn("failed to record payment on pool")
	}
}

// sendPaymentLeg retries attemptPaymentLeg up to MaxPaymentLegRetries for
// the Direct-mode path, where a resubmitted, identically-signed transfer
// is safe to retry. A Gasless-mode leg is never retried: the facilitator
// already holds a partially-signed transaction once /settle is called, so
// resubmitting on a timeout risks the facilitator broadcasting both
// attempts and double-settling the payment.
func (e *Engine) sendPaymentLeg(ctx context.Context, s *Session, burnerPriv ed25519.PrivateKey) (string, error) {
	if s.Mode == domain.ModeGasless {
		sig, err := e.attemptPaymentLeg(ctx, s, burnerPriv)
		if err != nil {
			s.RetryCount = 1
			return "", errors.Chain(err, "payment: gasless leg failed, not retried to avoid double settlement")
		}
		return sig, nil
	}

	var lastErr error
	for attempt := 0; attempt < MaxPaymentLegRetries; attempt++ {
		sig, err := e.attemptPaymentLeg(ctx, s, burnerPriv)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		s.RetryCount = attempt + 1
	}
	return "", errors.Chain(lastErr, "payment: leg 3 exhausted retry budget")
}

func (e *Engine) attemptPaymentLeg(ctx context.Context, s *Session, burnerPriv ed25519.PrivateKey) (string, error) {
	if s.Mode == domain.ModeGasless && e.facilitator != nil {
		feePayer, err := e.facilitator.FeePayer(ctx, chainNetwork)
		if err != nil {
			return "", err
		}
		build, err := e.compression.BuildCompressedTransferWithFeePayer(ctx, s.BurnerPublicKey, s.Recipient, s.Mint, s.Amount, feePayer)
		if err != nil {
			return "", err
		}
		partial := signEnvelope(build.TransactionBase64, burnerPriv)
		payload, err := json.Marshal(struct {
			PartiallySignedTransaction string `json:"partiallySignedTransaction"`
		}{PartiallySignedTransaction: partial})
		if err != nil {
			return "", errors.Internal(err, "payment: encode settle payload")
		}
		requirements, err := json.Marshal(paymentRequirements{
			Network: chainNetwork,
			Asset:   s.Mint,
			Amount:  fmt.Sprintf("%d", s.Amount),
			PayTo:   s.Recipient,
			Nonce:   s.ID,
		})
		if err != nil {
			return "", errors.Internal(err, "payment: encode settle requirements")
		}
		result, err := e.facilitator.Settle(ctx, facilitator.SettleRequest{
			PaymentPayload:      payload,
			PaymentRequirements: requirements,
		})
		if err != nil {
			return "", err
		}
		if ok, err := e.chain.ConfirmTransaction(ctx, result.TransactionSignature); err != nil || !ok {
			return "", errors.Chain(err, "gasless payment leg did not confirm")
		}
		return result.TransactionSignature, nil
	}

	txBase64, err := e.chain.BuildTransferChecked(ctx, s.BurnerPublicKey, s.Recipient, s.Mint, s.Amount, e.recoveryAddress)
	if err != nil {
		return "", err
	}
	sig, err := e.chain.SubmitTransaction(ctx, signEnvelope(txBase64, e.recoverySigner, burnerPriv))
	if err != nil {
		return "", err
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, sig); err != nil || !ok {
		return "", errors.Chain(err, "direct payment leg did not confirm")
	}
	return sig, nil
}

func (e *Engine) sweepBurnerAfterFailedPayment(ctx context.Context, s *Session, burnerPriv ed25519.PrivateKey, burnerATA string) {
	recoveryATA := deriveTokenAccount(e.recoveryAddress, s.Mint)
	txBase64, err := e.chain.BuildTransferChecked(ctx, s.BurnerPublicKey, recoveryATA, s.Mint, s.Amount, e.recoveryAddress)
	if err != nil {
		e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Error("failed to build post-retry sweep")
		return
	}
	sig, err := e.chain.SubmitTransaction(ctx, signEnvelope(txBase64, e.recoverySigner, burnerPriv))
	if err != nil {
		e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Error("failed to submit post-retry sweep")
		return
	}
	e.chain.ConfirmTransaction(ctx, sig)
	// The burner's ATA is left open here; no native asset is recovered at
	// this point. For a compressed-flow session the reconciler's later
	// closeAndSweep closes it and credits the reclaimed rent;
	// ReconcileOrphans skips direct-flow sessions, so theirs stays open.
}

// closeAndSweep implements leg 4: a non-zero residual balance ("dust
// attack") is swept to a Recovery-Pool-owned token account before the
// account is closed and its rent directed back to the Recovery Pool.
func (e *Engine) closeAndSweep(ctx context.Context, s *Session, burnerPriv ed25519.PrivateKey, burnerATA string) error {
	balance, err := e.chain.GetTokenAccountBalance(ctx, burnerATA)
	if err != nil {
		return err
	}
	if balance > dustThreshold {
		recoveryATA := deriveTokenAccount(e.recoveryAddress, s.Mint)
		sweepTx, err := e.chain.BuildTransferChecked(ctx, s.BurnerPublicKey, recoveryATA, s.Mint, balance, e.recoveryAddress)
		if err != nil {
			return err
		}
		sweepSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(sweepTx, e.recoverySigner, burnerPriv))
		if err != nil {
			return err
		}
		if ok, err := e.chain.ConfirmTransaction(ctx, sweepSig); err != nil || !ok {
			return errors.Chain(err, "dust sweep did not confirm")
		}
	}

	closeTx, err := e.chain.BuildCloseAccount(ctx, burnerATA, e.recoveryAddress, s.BurnerPublicKey)
	if err != nil {
		return err
	}
	closeSig, err := e.chain.SubmitTransaction(ctx, signEnvelope(closeTx, e.recoverySigner, burnerPriv))
	if err != nil {
		return err
	}
	if ok, err := e.chain.ConfirmTransaction(ctx, closeSig); err != nil || !ok {
		return errors.Chain(err, "close-account did not confirm")
	}
	e.recoveryPool.Recover(ctx, e.recoveryAddress, ataRentLamports)
	return nil
}

func (e *Engine) fail(ctx context.Context, s *Session, leg domain.LegKind, cause error) {
	s.Status = domain.PaymentFailed
	s.FailureReason = cause.Error()
	if err := e.save(ctx, s); err != nil {
		e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Error("failed to persist failed payment")
	}
	e.appendAuditFailure(ctx, s, leg, cause)
}

// failOrphaned marks s Failed without releasing the leg-1 reservation: the
// burner ATA was already paid for and exists on-chain. For a
// compressed-flow session its rent is reclaimed by the orphan-sweep
// reconciler rather than here; ReconcileOrphans skips direct-flow
// sessions, so nothing reclaims a direct-flow burner failed here.
func (e *Engine) failOrphaned(ctx context.Context, s *Session, leg domain.LegKind, cause error) {
	e.fail(ctx, s, leg, cause)
}

func (e *Engine) appendAudit(ctx context.Context, s *Session, leg domain.LegKind, signature string) {
	if e.audit == nil {
		return
	}
	flags := []string{"direct"}
	if s.Compressed {
		flags = []string{"compressed"}
	}
	if err := e.audit.Append(ctx, s.Owner, audit.Entry{
		SessionID:      s.ID,
		LegKind:        leg,
		ChainSignature: signature,
		Amount:         s.Amount,
		Timestamp:      e.now(),
		PrivacyFlags:   flags,
	}); err != nil {
		e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Warn("audit append failed")
	}
}

func (e *Engine) appendAuditFailure(ctx context.Context, s *Session, leg domain.LegKind, cause error) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(ctx, s.Owner, audit.Entry{
		SessionID:       s.ID,
		LegKind:         leg,
		Amount:          s.Amount,
		Timestamp:       e.now(),
		FailureCategory: string(errors.CodeOf(cause)),
	}); err != nil {
		e.log.Component("payment").WithField("payment_id", s.ID).WithField("error", err.Error()).Warn("audit append failed")
	}
}

func legTxID(sessionID string, leg domain.LegKind) string {
	return sessionID + ":" + string(leg)
}

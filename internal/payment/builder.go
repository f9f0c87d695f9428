package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Whole loyalty tokens sent to the buyer per checkout.
const loyaltyReward = 1

// Ledger is the slice of the ledger client the builder needs.
type Ledger interface {
	EnsureAssociatedAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error)
	TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	LatestCheckpoint(ctx context.Context) (ledger.Checkpoint, error)
}

type Config struct {
	Merchant    solana.PrivateKey // kosong -> ErrMisconfigured saat Build
	ValueMint   solana.PublicKey
	LoyaltyMint solana.PublicKey
	Message     string
	Recorder    Recorder
}

type Builder struct {
	ledger Ledger
	cfg    Config
	now    func() time.Time
}

func NewBuilder(l Ledger, cfg Config) *Builder {
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	return &Builder{ledger: l, cfg: cfg, now: time.Now}
}

type Request struct {
	Cart      catalog.Cart
	Buyer     string
	Reference string
}

type PaymentRequest struct {
	Transaction *solana.Transaction
	Encoded     string // base64 wire bytes, buyer signature slot still empty
	Message     string
	Amount      decimal.Decimal
	Units       uint64
	Buyer       solana.PublicKey
	Reference   solana.PublicKey
	Checkpoint  ledger.Checkpoint
}

// Build turns a cart into a transaction carrying the payment (tagged with the
// reference) followed by the loyalty reward, co-signed by the merchant.
// Input checks run before any ledger call.
func (b *Builder) Build(ctx context.Context, req Request) (*PaymentRequest, error) {
	amount := catalog.Price(req.Cart)
	if !amount.IsPositive() {
		return nil, ErrZeroAmount
	}
	if req.Reference == "" {
		return nil, ErrMissingReference
	}
	if req.Buyer == "" {
		return nil, ErrMissingBuyer
	}
	if len(b.cfg.Merchant) == 0 {
		return nil, ErrMisconfigured
	}

	reference, err := solana.PublicKeyFromBase58(req.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: reference: %v", ErrInvalidKey, err)
	}
	buyer, err := solana.PublicKeyFromBase58(req.Buyer)
	if err != nil {
		return nil, fmt.Errorf("%w: account: %v", ErrInvalidKey, err)
	}
	merchant := b.cfg.Merchant.PublicKey()

	// buyer belum tanda tangan apa pun, jadi akun kupon dibuat atas biaya toko
	buyerLoyalty, err := b.ledger.EnsureAssociatedAccount(ctx, b.cfg.Merchant, buyer, b.cfg.LoyaltyMint)
	if err != nil {
		return nil, fmt.Errorf("buyer loyalty account: %w", err)
	}
	merchantLoyalty, err := ledger.AssociatedAccount(merchant, b.cfg.LoyaltyMint)
	if err != nil {
		return nil, fmt.Errorf("merchant loyalty account: %w", err)
	}
	buyerValue, err := ledger.AssociatedAccount(buyer, b.cfg.ValueMint)
	if err != nil {
		return nil, fmt.Errorf("buyer value account: %w", err)
	}
	merchantValue, err := ledger.AssociatedAccount(merchant, b.cfg.ValueMint)
	if err != nil {
		return nil, fmt.Errorf("merchant value account: %w", err)
	}

	valueDecimals, err := b.ledger.TokenDecimals(ctx, b.cfg.ValueMint)
	if err != nil {
		return nil, fmt.Errorf("value token metadata: %w", err)
	}
	loyaltyDecimals, err := b.ledger.TokenDecimals(ctx, b.cfg.LoyaltyMint)
	if err != nil {
		return nil, fmt.Errorf("loyalty token metadata: %w", err)
	}

	units, err := ToUnits(amount, valueDecimals)
	if err != nil {
		return nil, err
	}
	reward, err := ToUnits(decimal.NewFromInt(loyaltyReward), loyaltyDecimals)
	if err != nil {
		return nil, err
	}

	cp, err := b.ledger.LatestCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	payIx, err := token.NewTransferCheckedInstruction(
		units, valueDecimals,
		buyerValue, b.cfg.ValueMint, merchantValue, buyer,
		nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("payment ix: %w", err)
	}
	tagged, err := withReference(payIx, reference)
	if err != nil {
		return nil, err
	}
	rewardIx, err := token.NewTransferCheckedInstruction(
		reward, loyaltyDecimals,
		merchantLoyalty, b.cfg.LoyaltyMint, buyerLoyalty, merchant,
		nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("reward ix: %w", err)
	}

	// urutan tetap: bayar dulu, baru reward
	tx, err := solana.NewTransaction(
		[]solana.Instruction{tagged, rewardIx},
		cp.Blockhash,
		solana.TransactionPayer(buyer),
	)
	if err != nil {
		return nil, fmt.Errorf("new transaction: %w", err)
	}

	// merchant signs first; any later change to the instructions voids this signature
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(merchant) {
			return &b.cfg.Merchant
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("merchant sign: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}

	pr := &PaymentRequest{
		Transaction: tx,
		Encoded:     base64.StdEncoding.EncodeToString(raw),
		Message:     b.cfg.Message,
		Amount:      amount,
		Units:       units,
		Buyer:       buyer,
		Reference:   reference,
		Checkpoint:  cp,
	}

	if err := b.cfg.Recorder.RecordAttempt(ctx, Attempt{
		Reference: reference,
		Buyer:     buyer,
		Mint:      b.cfg.ValueMint,
		Amount:    amount,
		Units:     units,
		CreatedAt: b.now().UTC(),
	}); err != nil {
		log.WithError(err).WithField("reference", reference).Warn("record payment attempt")
	}
	return pr, nil
}

// withReference re-emits ix with ref appended as a read-only, non-signing key.
// That key is what makes the transaction findable by reference later.
func withReference(ix solana.Instruction, ref solana.PublicKey) (solana.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("instruction data: %w", err)
	}
	accounts := append(solana.AccountMetaSlice{}, ix.Accounts()...)
	accounts = append(accounts, solana.NewAccountMeta(ref, false, false))
	return solana.NewInstruction(ix.ProgramID(), accounts, data), nil
}

// ToUnits scales a human amount into integer token units.
func ToUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	scaled := amount.Shift(int32(decimals))
	if scaled.IsNegative() || !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s at %d decimals", ErrAmountPrecision, amount, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows", ErrAmountPrecision, amount)
	}
	return bi.Uint64(), nil
}

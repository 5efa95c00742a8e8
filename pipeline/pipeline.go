// Package pipeline implements the swap transaction lifecycle state
// machine: Idle → Review → Building → AwaitingSignature → Broadcasting →
// Confirming → Completed, with Error as the terminal failure state. The
// pipeline is the only writer of the swap status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/maspnet/shieldswap/ledger"
	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/notify"
	"github.com/maspnet/shieldswap/signer"
	"github.com/maspnet/shieldswap/state"
	"github.com/maspnet/shieldswap/store"
	"github.com/maspnet/shieldswap/validator"
	"github.com/maspnet/shieldswap/wallet"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "pipeline").Logger()
}

var attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shieldswap_swap_attempts_total",
	Help: "Swap attempts by terminal state.",
}, []string{"outcome"})

// ErrInvalidTransition is returned when an operation is not allowed from
// the current status.
var ErrInvalidTransition = errors.New("operation not allowed in current status")

// ErrTransaction is the broadcast-boundary failure. The compensating
// signer release has already run by the time it surfaces.
var ErrTransaction = errors.New("Transaction error")

// defaultEventErrorMessage is shown when a failure event carries no
// message of its own.
const defaultEventErrorMessage = "Transaction failed"

// Config carries the chain-level constants of the swap leg.
type Config struct {
	// ContractAddress is the crosschain-swap contract on the broker chain
	// that receives the unshielded funds.
	ContractAddress string
	ChannelID       string
	PortID          string
	OsmosisRestRPC  string
	ChainID         string
	// CompletedDisplayDelay is how long the Completed status stays on
	// screen before the pipeline returns to Idle and clears the amounts.
	CompletedDisplayDelay time.Duration
}

// attempt is the in-flight swap attempt. The refund-target signer belongs
// exclusively to one attempt and is released at most once.
type attempt struct {
	txHash       string
	refundTarget string
	noteID       string
	release      sync.Once
}

// Pipeline drives a swap attempt end to end against the chain service and
// wallet collaborators.
type Pipeline struct {
	state    *state.Store
	persist  *store.Store
	wallet   wallet.Wallet
	chain    ledger.Collaborator
	notifier notify.Dispatcher
	cfg      Config

	mu         sync.RWMutex
	status     models.Status
	current    *attempt
	lastRecord *models.SwapTransactionRecord
}

// New creates a Pipeline in the Idle status.
func New(st *state.Store, persist *store.Store, w wallet.Wallet, chain ledger.Collaborator, notifier notify.Dispatcher, cfg Config) *Pipeline {
	if cfg.ChannelID == "" {
		cfg.ChannelID = "channel-1"
	}
	if cfg.PortID == "" {
		cfg.PortID = "transfer"
	}
	if cfg.CompletedDisplayDelay <= 0 {
		cfg.CompletedDisplayDelay = 3 * time.Second
	}
	if notifier == nil {
		notifier = notify.LogDispatcher{}
	}
	return &Pipeline{
		state:    st,
		persist:  persist,
		wallet:   w,
		chain:    chain,
		notifier: notifier,
		cfg:      cfg,
		status:   models.StatusIdle(),
	}
}

// Status returns the current pipeline status.
func (p *Pipeline) Status() models.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Phase returns the current phase; it satisfies quote.StatusFunc.
func (p *Pipeline) Phase() models.Phase {
	return p.Status().Phase
}

// LastRecord returns the transaction record of the most recent broadcast
// attempt, or nil.
func (p *Pipeline) LastRecord() *models.SwapTransactionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRecord
}

func (p *Pipeline) setStatus(s models.Status) {
	p.mu.Lock()
	prev := p.status
	p.status = s
	p.mu.Unlock()
	log.Info().Str("from", string(prev.Phase)).Str("to", string(s.Phase)).Msg("Status transition")
}

// Validate runs the pre-review chain against the live intent and wallet
// state. It never mutates the status.
func (p *Pipeline) Validate(ctx context.Context) validator.Reason {
	intent := p.state.Intent()

	in := validator.PreReviewInput{
		Mode:       intent.Mode,
		SellAsset:  intent.SellAsset,
		BuyAsset:   intent.BuyAsset,
		SellAmount: p.state.SellAmount(),
		BuyAmount:  p.state.BuyAmount(),
	}

	if addr, err := p.wallet.ConnectedAddress(ctx); err == nil {
		in.WalletAddress = addr
	}
	if intent.SellAsset != nil {
		if bal, err := p.wallet.SpendableBalance(ctx, intent.SellAsset.Address); err == nil {
			in.AvailableMinusFees = &bal
		}
	}

	return validator.PreReview(in)
}

// RequestReview moves Idle to Review once pre-review validation passes.
// The returned reason is Ok exactly when the transition happened.
func (p *Pipeline) RequestReview(ctx context.Context) (validator.Reason, error) {
	if phase := p.Phase(); phase != models.PhaseIdle {
		return "", fmt.Errorf("%w: cannot review from %s", ErrInvalidTransition, phase)
	}

	reason := p.Validate(ctx)
	if reason != validator.Ok {
		return reason, nil
	}
	p.setStatus(models.StatusReview())
	return validator.Ok, nil
}

// Back leaves Review or Error and returns to Idle. Nothing is retried.
func (p *Pipeline) Back() error {
	phase := p.Phase()
	if phase != models.PhaseReview && phase != models.PhaseError {
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, phase)
	}
	p.mu.Lock()
	p.current = nil
	p.status = models.StatusIdle()
	p.mu.Unlock()
	return nil
}

// ValidateReview runs the review chain against live wallet state.
func (p *Pipeline) ValidateReview(ctx context.Context) validator.Reason {
	in := validator.ReviewInput{}
	if addr, err := p.wallet.ConnectedAddress(ctx); err == nil {
		in.WalletAddress = addr
	}
	if hw, err := p.wallet.Hardware(ctx); err == nil && hw != nil {
		in.Ledger = &validator.LedgerInfo{
			DeviceConnected: hw.DeviceConnected,
			ErrorMessage:    hw.ErrorMessage,
		}
	}
	return validator.Review(in)
}

// Submit runs the swap attempt. It is allowed from Review, or from Error
// as a manual retry. localRecoveryAddr is the broker-chain address funds
// fall back to if delivery to the contract fails.
func (p *Pipeline) Submit(ctx context.Context, localRecoveryAddr string) error {
	if phase := p.Phase(); phase != models.PhaseReview && phase != models.PhaseError {
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, phase)
	}

	if reason := p.ValidateReview(ctx); reason != validator.Ok {
		return fmt.Errorf("submit blocked: %s", validator.ReviewMessages[reason])
	}

	if err := p.beginAttempt(); err != nil {
		return err
	}

	if err := p.submit(ctx, localRecoveryAddr); err != nil {
		attemptsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Swap attempt failed")
		msg := err.Error()
		if errors.Is(err, ErrTransaction) {
			msg = ErrTransaction.Error()
		}
		p.setStatus(models.StatusError(msg))
		return err
	}
	return nil
}

// beginAttempt claims the Building status for one attempt. The phase
// check and the transition happen under a single lock, so concurrent
// Submit calls cannot both start building.
func (p *Pipeline) beginAttempt() error {
	p.mu.Lock()
	prev := p.status
	if prev.Phase != models.PhaseReview && prev.Phase != models.PhaseError {
		p.mu.Unlock()
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, prev.Phase)
	}
	p.status = models.StatusBuilding()
	p.mu.Unlock()
	log.Info().Str("from", string(prev.Phase)).Str("to", string(models.PhaseBuilding)).Msg("Status transition")
	return nil
}

// submit performs the attempt steps through broadcast. The caller maps a
// returned error to the Error status.
func (p *Pipeline) submit(ctx context.Context, localRecoveryAddr string) error {
	// Snapshot everything the attempt needs up front; validation gating
	// makes absence here a precondition violation, fatal for the attempt.
	if localRecoveryAddr == "" {
		return errors.New("no local recovery address found")
	}
	if !signer.ValidAddress(localRecoveryAddr, "") {
		return errors.New("invalid local recovery address")
	}
	intent := p.state.Intent()
	if intent.SellAsset == nil || intent.BuyAsset == nil {
		return errors.New("missing swap assets")
	}
	quote := p.state.Quote()
	if quote == nil {
		return errors.New("no quote found")
	}
	sellAmount := p.state.SellAmount()
	if sellAmount == nil {
		return errors.New("no sell amount")
	}
	buyAmount := p.state.BuyAmount()
	if buyAmount == nil {
		return errors.New("no buy amount")
	}
	minAmount := p.state.MinAmount()
	if minAmount == nil {
		return errors.New("no minimum amount calculated")
	}

	outputDenom, err := intent.BuyAsset.RoutableDenom()
	if err != nil {
		return fmt.Errorf("no IBC trace found: %w", err)
	}
	if len(quote.Routes) == 0 || len(quote.Routes[0].Pools) == 0 {
		return errors.New("no swap route found")
	}
	route := quote.Routes[0].Pools

	accounts, err := p.wallet.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	shielded, ok := wallet.ShieldedAccount(accounts)
	if !ok {
		return errors.New("no shielded account found")
	}
	transparent, ok := wallet.TransparentAccount(accounts)
	if !ok {
		return errors.New("no transparent account found")
	}

	gas, err := p.wallet.GasConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load gas config: %w", err)
	}

	// Two distinct disposable signers: the refund target receives funds
	// if the broker-side swap refunds, the fee signer pays the wrapper
	// fee. Only the refund target is ever persisted.
	refundTarget, err := p.wallet.FreshSigner(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain refund target signer: %w", err)
	}
	feeSigner, err := p.wallet.FreshSigner(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain fee signer: %w", err)
	}

	params := ledger.BuildParams{
		Transfer: ledger.Transfer{
			AmountInBaseDenom: models.ToBaseAmount(*intent.SellAsset, *sellAmount),
			ChannelID:         p.cfg.ChannelID,
			PortID:            p.cfg.PortID,
			Token:             intent.SellAsset.Address,
			Source:            shielded.PseudoExtendedKey,
			GasSpendingKey:    shielded.PseudoExtendedKey,
			Receiver:          p.cfg.ContractAddress,
			RefundTarget:      refundTarget.Address,
		},
		OutputDenom: outputDenom,
		Recipient:   shielded.Address,
		Overflow:    transparent.Address,
		Slippage: map[string]string{
			"0": minAmount.Truncate(0).String(),
		},
		LocalRecoveryAddr: localRecoveryAddr,
		Route:             route,
		OsmosisRestRPC:    p.cfg.OsmosisRestRPC,
	}

	// The refund target must be durable before any transaction bytes
	// exist: a crash between build and broadcast must leave the refund
	// address recoverable.
	if err := p.persist.PersistSigner(refundTarget); err != nil {
		return fmt.Errorf("failed to persist refund target: %w", err)
	}

	encoded, err := p.chain.Build(ctx, feeSigner, transparent, params, gas)
	if err != nil {
		return fmt.Errorf("failed to build transaction: %w", err)
	}

	p.setStatus(models.StatusAwaitingSignature())
	signed, err := p.chain.Sign(ctx, encoded, feeSigner.Address)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	notificationID := notify.ID(append([]string{encoded.Hash}, encoded.InnerHashes...)...)
	p.notifier.Dispatch(notify.Notification{
		ID:          notificationID,
		Type:        notify.TypePending,
		Title:       "Transaction pending",
		Description: "Your shielded swap is being processed. This can take a few moments.",
	})

	p.setStatus(models.StatusBroadcasting())
	if err := p.chain.Broadcast(ctx, encoded, signed, ledger.KindShieldedOsmosisSwap); err != nil {
		// Compensation: the refund target is useless for an attempt that
		// never reached the chain.
		if clearErr := p.persist.ClearSigner(refundTarget.Address); clearErr != nil {
			log.Error().Err(clearErr).Str("address", refundTarget.Address).Msg("Failed to clear refund target after broadcast failure")
		}
		p.notifier.Dispatch(notify.Notification{
			ID:      notificationID,
			Type:    notify.TypeError,
			Title:   "Swap error",
			Details: err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	record := models.SwapTransactionRecord{
		Hash:               encoded.Hash,
		InnerHash:          strings.ToLower(encoded.InnerHash()),
		Kind:               ledger.KindShieldedOsmosisSwap,
		Status:             "pending",
		Asset:              *intent.SellAsset,
		TargetAsset:        *intent.BuyAsset,
		DisplayAmount:      *sellAmount,
		MinAmountOut:       *buyAmount,
		ChainID:            p.cfg.ChainID,
		Memo:               encoded.Memo,
		SourceAddress:      transparent.Alias + " - shielded",
		DestinationAddress: p.cfg.ContractAddress,
		RefundTarget:       refundTarget.Address,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := p.persist.SaveTransaction(record); err != nil {
		log.Error().Err(err).Str("hash", record.Hash).Msg("Failed to store transaction record")
	}

	p.mu.Lock()
	p.current = &attempt{txHash: encoded.Hash, refundTarget: refundTarget.Address, noteID: notificationID}
	p.lastRecord = &record
	p.status = models.StatusConfirming(encoded.Hash)
	p.mu.Unlock()
	log.Info().Str("hash", encoded.Hash).Msg("Awaiting confirmation")

	return nil
}

// Run consumes outcome events until ctx is done. Events only act on the
// attempt currently confirming with a matching hash; anything else is a
// stale or foreign event and is dropped.
func (p *Pipeline) Run(ctx context.Context) {
	events := p.chain.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

func (p *Pipeline) handleEvent(ev ledger.OutcomeEvent) {
	p.mu.Lock()
	att := p.current
	confirming := p.status.Phase == models.PhaseConfirming
	p.mu.Unlock()

	if !confirming || att == nil || ev.Hash != att.txHash {
		log.Debug().Str("hash", ev.Hash).Str("kind", ev.Kind).Msg("Ignoring event for inactive attempt")
		return
	}

	switch ev.Kind {
	case ledger.EventShieldedOsmosisSwapSuccess:
		p.releaseSigner(att)
		attemptsTotal.WithLabelValues("completed").Inc()
		p.setStatus(models.StatusCompleted())
		p.notifier.Dispatch(notify.Notification{
			ID:          att.noteID,
			Type:        notify.TypeSuccess,
			Title:       models.StatusMessages[models.PhaseCompleted].Title,
			Description: models.StatusMessages[models.PhaseCompleted].Description,
		})
		p.scheduleReturnToIdle(att)

	case ledger.EventShieldedOsmosisSwapError:
		// The refund target stays persisted: it is the recovery handle
		// for funds the failed swap may have stranded.
		msg := ev.ErrorMessage
		if msg == "" {
			msg = defaultEventErrorMessage
		}
		attemptsTotal.WithLabelValues("error").Inc()
		p.setStatus(models.StatusError(msg))

	default:
		log.Debug().Str("kind", ev.Kind).Msg("Ignoring unknown event kind")
	}
}

// releaseSigner clears the attempt's refund target exactly once, no
// matter how many outcome paths fire.
func (p *Pipeline) releaseSigner(att *attempt) {
	att.release.Do(func() {
		if err := p.persist.ClearSigner(att.refundTarget); err != nil {
			log.Error().Err(err).Str("address", att.refundTarget).Msg("Failed to clear refund target")
		}
	})
}

// scheduleReturnToIdle clears the amounts and returns to Idle after the
// Completed status has been shown, unless a new attempt started meanwhile.
func (p *Pipeline) scheduleReturnToIdle(att *attempt) {
	time.AfterFunc(p.cfg.CompletedDisplayDelay, func() {
		p.mu.Lock()
		stillCurrent := p.current == att && p.status.Phase == models.PhaseCompleted
		if stillCurrent {
			p.current = nil
			p.status = models.StatusIdle()
		}
		p.mu.Unlock()
		if stillCurrent {
			p.state.ClearAmounts()
		}
	})
}

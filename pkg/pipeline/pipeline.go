// Package pipeline signs, submits and confirms transactions, and extracts
// the return data of the instructions they carry.
package pipeline

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aqd-labs/aqd-solana/pkg/builder"
	"github.com/aqd-labs/aqd-solana/pkg/codec"
	"github.com/aqd-labs/aqd-solana/pkg/metrics"
	"github.com/aqd-labs/aqd-solana/pkg/retry"
	"github.com/aqd-labs/aqd-solana/pkg/retry/backoff"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

const (
	metricsStructName = "pipeline.Pipeline"

	confirmationLatencyMetricName = "Pipeline/ConfirmationLatency"
	submissionCountMetricName     = "Pipeline/SubmissionCount"

	transactionLookupAttempts = 5
)

var (
	ErrMissingSignature = errors.New("transaction is missing a signature")

	errNotConfirmed = errors.New("transaction not confirmed")
)

// Intent selects whether a transaction is committed or only simulated.
type Intent int

const (
	IntentSend Intent = iota
	IntentSimulate
)

func (i Intent) String() string {
	if i == IntentSimulate {
		return "simulate"
	}
	return "send"
}

// Client is the subset of the RPC API the pipeline needs.
type Client interface {
	GetLatestBlockhash() (solana.Blockhash, error)
	RefreshLatestBlockhash() (solana.Blockhash, error)
	SimulateTransaction(solana.Transaction, solana.Commitment) (*solana.SimulationResult, error)
	SubmitTransaction(solana.Transaction, solana.SubmitOptions) (solana.Signature, error)
	GetSignatureStatuses([]solana.Signature) ([]*solana.SignatureStatus, error)
	GetTransaction(solana.Signature, solana.Commitment) (solana.ConfirmedTransaction, error)
}

// Outcome describes an executed or simulated transaction.
type Outcome struct {
	// Signature is unset for simulations.
	Signature solana.Signature
	Slot      uint64
	Logs      []string

	ReturnData    []byte
	HasReturnData bool

	// Return is the decoded return value of an instruction that declares a
	// return type.
	Return interface{}

	UnitsConsumed uint64
}

type Pipeline struct {
	log    *logrus.Entry
	conf   *conf
	client Client
}

func New(client Client, configProvider ConfigProvider) *Pipeline {
	return &Pipeline{
		log:    logrus.StandardLogger().WithField("type", "pipeline/pipeline"),
		conf:   configProvider(),
		client: client,
	}
}

// Submit executes a single encoded instruction and decodes its return value,
// when the instruction declares one.
func (p *Pipeline) Submit(
	ctx context.Context,
	ix *builder.EncodedInstruction,
	feePayer ed25519.PrivateKey,
	signers []ed25519.PrivateKey,
	intent Intent,
) (*Outcome, error) {
	outcome, err := p.SubmitInstructions(ctx, feePayer, signers, intent, ix.ToInstruction())
	if err != nil {
		return outcome, err
	}

	data, ok, err := ExtractReturnData(outcome.Logs, ix.ProgramID)
	if err != nil {
		return outcome, &returnDecodeError{err: err}
	}
	if ok {
		outcome.ReturnData, outcome.HasReturnData = data, true
	}

	if ix.Returns == nil {
		return outcome, nil
	}
	if !outcome.HasReturnData {
		return outcome, &returnDecodeError{err: errors.Errorf("%s returned no data", ix.Name)}
	}

	outcome.Return, err = codec.DecodeAll(outcome.ReturnData, ix.Returns)
	if err != nil {
		return outcome, &returnDecodeError{err: err}
	}
	return outcome, nil
}

// SubmitInstructions places instructions into a single transaction paid for
// by feePayer, signs it and either simulates it or sends it and waits for the
// configured commitment.
//
// A blockhash the cluster no longer recognizes is refreshed and the
// transaction re-signed exactly once.
func (p *Pipeline) SubmitInstructions(
	ctx context.Context,
	feePayer ed25519.PrivateKey,
	signers []ed25519.PrivateKey,
	intent Intent,
	instructions ...solana.Instruction,
) (outcome *Outcome, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SubmitInstructions")
	tracer.AddAttribute("intent", intent.String())
	defer func() {
		tracer.Finish(err)
	}()

	commitment, err := solana.ParseCommitment(p.conf.commitment.Get(ctx))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.conf.confirmationTimeout.Get(ctx))
	defer cancel()

	blockhash, err := p.client.GetLatestBlockhash()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recent blockhash")
	}

	outcome, err = p.attempt(ctx, commitment, blockhash, feePayer, signers, intent, instructions)
	if !errors.Is(err, solana.ErrBlockhashExpired) {
		return outcome, err
	}

	p.log.WithField("method", "SubmitInstructions").Debug("blockhash expired, retrying with a fresh one")

	blockhash, err = p.client.RefreshLatestBlockhash()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh recent blockhash")
	}
	return p.attempt(ctx, commitment, blockhash, feePayer, signers, intent, instructions)
}

func (p *Pipeline) attempt(
	ctx context.Context,
	commitment solana.Commitment,
	blockhash solana.Blockhash,
	feePayer ed25519.PrivateKey,
	signers []ed25519.PrivateKey,
	intent Intent,
	instructions []solana.Instruction,
) (*Outcome, error) {
	txn := solana.NewTransaction(feePayer.Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(blockhash)

	if err := txn.CheckSize(); err != nil {
		return nil, err
	}

	if err := txn.Sign(append([]ed25519.PrivateKey{feePayer}, signers...)...); err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	if missing := txn.MissingSignatures(); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingSignature, "%s", base58.Encode(missing[0]))
	}

	if intent == IntentSimulate {
		return p.simulate(commitment, txn, instructions)
	}
	return p.send(ctx, commitment, txn, instructions)
}

func (p *Pipeline) simulate(commitment solana.Commitment, txn solana.Transaction, instructions []solana.Instruction) (*Outcome, error) {
	res, err := p.client.SimulateTransaction(txn, commitment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to simulate transaction")
	}

	outcome := &Outcome{
		Slot:          res.Slot,
		Logs:          res.Logs,
		UnitsConsumed: res.UnitsConsumed,
	}
	if res.Err != nil {
		return outcome, classify(res.Err, instructions, res.Logs)
	}

	// Structured return data is authoritative when logs were truncated.
	if res.ReturnData != nil && !hasReturnLog(res.Logs) {
		outcome.Logs = append(outcome.Logs, returnLog(res.ReturnData))
	}

	return outcome, nil
}

func (p *Pipeline) send(ctx context.Context, commitment solana.Commitment, txn solana.Transaction, instructions []solana.Instruction) (*Outcome, error) {
	log := p.log.WithField("method", "send")

	sig, err := p.client.SubmitTransaction(txn, solana.SubmitOptions{
		SkipPreflight:       p.conf.skipPreflight.Get(ctx),
		PreflightCommitment: commitment,
	})
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			return nil, classify(txErr, instructions, nil)
		}
		return nil, errors.Wrap(err, "failed to submit transaction")
	}

	log = log.WithField("signature", base58.Encode(sig[:]))
	metrics.RecordCount(ctx, submissionCountMetricName, 1)

	start := time.Now()
	status, err := p.confirm(ctx, sig, commitment)
	if err != nil {
		return &Outcome{Signature: sig}, err
	}
	metrics.RecordDuration(ctx, confirmationLatencyMetricName, time.Since(start))

	log.WithField("slot", status.Slot).Debug("transaction confirmed")

	outcome := &Outcome{Signature: sig, Slot: status.Slot}

	confirmed, lookupErr := p.lookup(ctx, sig, commitment)
	if lookupErr == nil {
		outcome.Logs = confirmed.Logs
		if confirmed.Slot > 0 {
			outcome.Slot = confirmed.Slot
		}
	}

	if status.ErrorResult != nil {
		return outcome, classify(status.ErrorResult, instructions, outcome.Logs)
	}
	if lookupErr != nil {
		log.WithError(lookupErr).Warn("failed to fetch confirmed transaction")
		return outcome, errors.Wrap(lookupErr, "failed to fetch confirmed transaction")
	}
	if confirmed.Err != nil {
		return outcome, classify(confirmed.Err, instructions, outcome.Logs)
	}

	return outcome, nil
}

// confirm polls the signature status until it reaches commitment or ctx
// expires.
func (p *Pipeline) confirm(ctx context.Context, sig solana.Signature, commitment solana.Commitment) (*solana.SignatureStatus, error) {
	poll := p.conf.pollInterval.Get(ctx)

	var status *solana.SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := p.client.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				p.log.WithError(err).WithField("method", "confirm").Debug("failed to get signature status")
				return errNotConfirmed
			}
			if len(statuses) == 0 || statuses[0] == nil {
				return errNotConfirmed
			}

			// A failed transaction is final at any commitment it is reported at.
			if statuses[0].ErrorResult == nil && !statuses[0].Satisfies(commitment) {
				return errNotConfirmed
			}

			status = statuses[0]
			return nil
		},
		retry.RetriableErrors(errNotConfirmed),
		retry.Context(ctx),
		retry.BackoffContext(ctx, backoff.Constant(poll), poll),
	)
	if err == nil {
		return status, nil
	}
	if errors.Is(err, errNotConfirmed) {
		return nil, errors.Wrapf(ErrConfirmationTimeout, "%s", base58.Encode(sig[:]))
	}
	return nil, err
}

type confirmedResult struct {
	Slot uint64
	Logs []string
	Err  *solana.TransactionError
}

// lookup fetches the logs of a confirmed transaction. Transactions are not
// served at processed commitment, so confirmed is the floor.
func (p *Pipeline) lookup(ctx context.Context, sig solana.Signature, commitment solana.Commitment) (*confirmedResult, error) {
	if commitment == solana.CommitmentProcessed {
		commitment = solana.CommitmentConfirmed
	}
	poll := p.conf.pollInterval.Get(ctx)

	var txn solana.ConfirmedTransaction
	_, err := retry.Retry(
		func() (err error) {
			txn, err = p.client.GetTransaction(sig, commitment)
			return err
		},
		retry.RetriableErrors(solana.ErrSignatureNotFound),
		retry.Limit(transactionLookupAttempts),
		retry.Context(ctx),
		retry.BackoffContext(ctx, backoff.Constant(poll), poll),
	)
	if err != nil {
		return nil, err
	}

	result := &confirmedResult{Slot: txn.Slot, Err: txn.Err}
	if txn.Meta == nil {
		return result, nil
	}

	result.Logs = txn.Meta.LogMessages
	returnData, err := txn.Meta.ReturnData()
	if err != nil {
		return nil, err
	}
	if returnData != nil && !hasReturnLog(result.Logs) {
		result.Logs = append(result.Logs, returnLog(returnData))
	}
	return result, nil
}

// classify maps a transaction failure onto the pipeline's errors.
func classify(txErr *solana.TransactionError, instructions []solana.Instruction, logs []string) error {
	if txErr.ErrorKey() == solana.TransactionErrorBlockhashNotFound {
		return solana.ErrBlockhashExpired
	}
	return newProgramExecutionError(txErr, instructions, logs)
}

// Package deploy uploads program binaries to the upgradeable BPF loader in
// chunks and activates them as programs.
package deploy

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"debug/elf"
	"math"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	xrate "golang.org/x/time/rate"

	"github.com/aqd-labs/aqd-solana/pkg/metrics"
	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/rate"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/solana/bpfloader"
	"github.com/aqd-labs/aqd-solana/pkg/solana/system"
)

const (
	metricsStructName = "deploy.Deployer"

	chunkWriteCountMetricName = "Deploy/ChunkWriteCount"
	deployedEventName         = "ProgramDeployed"
)

// Client is the subset of the RPC API the deployer reads from.
type Client interface {
	GetAccountInfo(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
	GetMinimumBalanceForRentExemption(size uint64) (uint64, error)
}

// Submitter sends transactions and waits for their confirmation.
type Submitter interface {
	SubmitInstructions(
		ctx context.Context,
		feePayer ed25519.PrivateKey,
		signers []ed25519.PrivateKey,
		intent pipeline.Intent,
		instructions ...solana.Instruction,
	) (*pipeline.Outcome, error)
}

type Deployer struct {
	log       *logrus.Entry
	conf      *conf
	client    Client
	submitter Submitter
	limiter   rate.Limiter
}

func New(client Client, submitter Submitter, configProvider ConfigProvider) *Deployer {
	conf := configProvider()

	return &Deployer{
		log:       logrus.StandardLogger().WithField("type", "deploy/deployer"),
		conf:      conf,
		client:    client,
		submitter: submitter,
		limiter:   newWriteLimiter(conf.writesPerSecond.Get(context.Background())),
	}
}

// newWriteLimiter treats a zero rate as unlimited.
func newWriteLimiter(writesPerSecond uint64) rate.Limiter {
	if writesPerSecond == 0 {
		return &rate.NoLimiter{}
	}
	return rate.NewLocalRateLimiter(xrate.Limit(writesPerSecond))
}

// CheckBinary verifies that binary is a non-empty ELF file the loader can
// address.
func CheckBinary(binary []byte) error {
	if len(binary) == 0 {
		return ErrEmptyBinary
	}
	if uint64(len(binary)) > math.MaxUint32 {
		return errors.Errorf("program binary of %d bytes is too large", len(binary))
	}

	f, err := elf.NewFile(bytes.NewReader(binary))
	if err != nil {
		return errors.Wrap(ErrInvalidELF, err.Error())
	}
	return f.Close()
}

// Deploy writes binary into a fresh buffer account and deploys it as a new
// program owned by the upgradeable loader, with payer as the upgrade
// authority. It returns the program's address.
//
// A failure at any step halts the deployment with a *DeploymentFailedError.
// The program is never finalized from a partially written buffer.
func (d *Deployer) Deploy(ctx context.Context, binary []byte, payer ed25519.PrivateKey) (program ed25519.PublicKey, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Deploy")
	tracer.AddAttribute("size", len(binary))
	defer func() {
		tracer.Finish(err)
	}()

	if err := CheckBinary(binary); err != nil {
		return nil, err
	}

	_, bufferKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate buffer key")
	}
	_, programKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate program key")
	}

	payerPub := payer.Public().(ed25519.PublicKey)
	buffer := bufferKey.Public().(ed25519.PublicKey)
	program = programKey.Public().(ed25519.PublicKey)

	log := d.log.WithFields(logrus.Fields{
		"method":  "Deploy",
		"buffer":  base58.Encode(buffer),
		"program": base58.Encode(program),
	})

	session, err := NewSession(binary, bpfloader.MaxWriteChunkSize(payerPub, buffer))
	if err != nil {
		return nil, err
	}

	fail := func(err error) error {
		var failed *DeploymentFailedError
		if !errors.As(err, &failed) {
			failed = &DeploymentFailedError{Offset: session.Offset(), Stage: session.State(), Cause: err}
		}
		session.Fail(failed)
		log.WithError(err).WithField("offset", failed.Offset).Warn("deployment failed")
		return failed
	}

	if err := d.initializeBuffer(ctx, payer, bufferKey, len(binary)); err != nil {
		return nil, fail(err)
	}
	if err := session.BeginWriting(); err != nil {
		return nil, fail(err)
	}

	log.WithField("size", len(binary)).Debug("buffer initialized")

	if err := d.writeChunks(ctx, session, payer, buffer); err != nil {
		return nil, fail(err)
	}
	if err := session.BeginFinalizing(); err != nil {
		return nil, fail(err)
	}

	if err := d.finalize(ctx, payer, programKey, buffer, len(binary)); err != nil {
		return nil, fail(err)
	}
	if err := session.Finish(); err != nil {
		return nil, fail(err)
	}

	log.Info("program deployed")
	metrics.RecordEvent(ctx, deployedEventName, map[string]interface{}{
		"program": base58.Encode(program),
		"size":    len(binary),
	})

	return program, nil
}

func (d *Deployer) initializeBuffer(ctx context.Context, payer, bufferKey ed25519.PrivateKey, size int) error {
	buffer := bufferKey.Public().(ed25519.PublicKey)

	_, err := d.client.GetAccountInfo(buffer, solana.CommitmentConfirmed)
	if err == nil {
		return errors.Wrapf(ErrAccountInUse, "buffer %s", base58.Encode(buffer))
	} else if !errors.Is(err, solana.ErrNoAccountInfo) {
		return errors.Wrap(err, "failed to check buffer account")
	}

	accountSize := uint64(bpfloader.BufferMetadataSize + size)
	lamports, err := d.client.GetMinimumBalanceForRentExemption(accountSize)
	if err != nil {
		return errors.Wrap(err, "failed to get rent exemption for buffer")
	}

	payerPub := payer.Public().(ed25519.PublicKey)
	_, err = d.submitter.SubmitInstructions(
		ctx,
		payer,
		[]ed25519.PrivateKey{bufferKey},
		pipeline.IntentSend,
		system.CreateAccount(payerPub, buffer, bpfloader.ProgramKey, lamports, accountSize),
		bpfloader.InitializeBuffer(buffer, payerPub),
	)
	return classify(err)
}

// writeChunks submits every chunk of the session, keeping up to the
// configured number of writes in flight. The first failure stops further
// chunks from being handed out.
func (d *Deployer) writeChunks(ctx context.Context, session *Session, payer ed25519.PrivateKey, buffer ed25519.PublicKey) error {
	payerPub := payer.Public().(ed25519.PublicKey)
	limiterKey := base58.Encode(buffer)

	inFlight := int(d.conf.maxInFlightWrites.Get(ctx))
	if inFlight < 1 {
		inFlight = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(inFlight)

	for ctx.Err() == nil {
		chunk, ok, err := session.NextChunk()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		g.Go(func() error {
			failed := func(err error) error {
				return &DeploymentFailedError{Offset: chunk.Offset, Stage: StateWriting, Cause: err}
			}

			if err := d.limiter.Wait(ctx, limiterKey); err != nil {
				return failed(err)
			}

			ix := bpfloader.Write(buffer, payerPub, uint32(chunk.Offset), chunk.Data)
			if _, err := d.submitter.SubmitInstructions(ctx, payer, nil, pipeline.IntentSend, ix); err != nil {
				return failed(classify(err))
			}
			if err := session.Confirm(chunk); err != nil {
				return failed(err)
			}

			metrics.RecordCount(ctx, chunkWriteCountMetricName, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if !session.Complete() {
		return errors.New("buffer write incomplete")
	}
	return nil
}

func (d *Deployer) finalize(ctx context.Context, payer, programKey ed25519.PrivateKey, buffer ed25519.PublicKey, size int) error {
	payerPub := payer.Public().(ed25519.PublicKey)
	program := programKey.Public().(ed25519.PublicKey)

	lamports, err := d.client.GetMinimumBalanceForRentExemption(bpfloader.ProgramAccountSize)
	if err != nil {
		return errors.Wrap(err, "failed to get rent exemption for program")
	}

	multiplier := d.conf.maxDataLenMultiplier.Get(ctx)
	if multiplier < 1 {
		multiplier = 1
	}

	deployIx, err := bpfloader.DeployWithMaxDataLen(payerPub, program, buffer, payerPub, uint64(size)*multiplier)
	if err != nil {
		return err
	}

	_, err = d.submitter.SubmitInstructions(
		ctx,
		payer,
		[]ed25519.PrivateKey{programKey},
		pipeline.IntentSend,
		system.CreateAccount(payerPub, program, bpfloader.ProgramKey, lamports, bpfloader.ProgramAccountSize),
		deployIx,
	)
	return classify(err)
}

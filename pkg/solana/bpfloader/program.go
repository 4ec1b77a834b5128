// Package bpfloader builds instructions for the upgradeable BPF loader, which
// owns every deployed program and its staging buffers.
package bpfloader

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"

	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/solana/binary"
	"github.com/aqd-labs/aqd-solana/pkg/solana/system"
)

// ProgramKey is BPFLoaderUpgradeab1e11111111111111111111111.
var ProgramKey ed25519.PublicKey

func init() {
	var err error
	ProgramKey, err = base58.Decode("BPFLoaderUpgradeab1e11111111111111111111111")
	if err != nil {
		panic(err)
	}
}

// Account layouts, in bytes.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.18.0/sdk/program/src/bpf_loader_upgradeable.rs#L70-L95
const (
	// tag (4) + Option<Pubkey> authority (1 + 32)
	BufferMetadataSize = 4 + 1 + ed25519.PublicKeySize
	// tag (4) + programdata address (32)
	ProgramAccountSize = 4 + ed25519.PublicKeySize
	// tag (4) + slot (8) + Option<Pubkey> upgrade authority (1 + 32)
	ProgramDataMetadataSize = 4 + 8 + 1 + ed25519.PublicKeySize
)

const (
	commandInitializeBuffer uint32 = iota
	commandWrite
	commandDeployWithMaxDataLen
)

// InitializeBuffer marks a freshly allocated, loader owned account as a
// buffer whose writes must be signed by authority.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.18.0/sdk/program/src/loader_upgradeable_instruction.rs#L13-L21
func InitializeBuffer(buffer, authority ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE] source account to initialize.
	//   1. [] Buffer authority, optional, if omitted then the buffer will be
	//      immutable.
	data := make([]byte, 4)

	var offset int
	binary.PutUint32(data, commandInitializeBuffer, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(buffer, false),
		solana.NewReadonlyAccountMeta(authority, false),
	)
}

// Write copies chunk into the buffer's program region at offset.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.18.0/sdk/program/src/loader_upgradeable_instruction.rs#L23-L32
func Write(buffer, authority ed25519.PublicKey, offset uint32, chunk []byte) solana.Instruction {
	// # Account references
	//   0. [WRITE] Buffer account to write program data to.
	//   1. [SIGNER] Buffer authority
	//
	// Write {
	//   offset: u32,
	//   bytes: Vec<u8>, // bincode: u64 length prefix
	// }
	data := make([]byte, 4+4+8+len(chunk))

	var cursor int
	binary.PutUint32(data, commandWrite, &cursor)
	binary.PutUint32(data, offset, &cursor)
	binary.PutUint64(data, uint64(len(chunk)), &cursor)
	copy(data[cursor:], chunk)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(buffer, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

// DeployWithMaxDataLen turns the program account into an executable program
// whose bytes are copied out of buffer. The program data account can hold up
// to maxDataLen bytes of program code.
//
// Reference: https://github.com/solana-labs/solana/blob/v1.18.0/sdk/program/src/loader_upgradeable_instruction.rs#L34-L68
func DeployWithMaxDataLen(payer, program, buffer, authority ed25519.PublicKey, maxDataLen uint64) (solana.Instruction, error) {
	// # Account references
	//   0. [WRITE, SIGNER] The payer account that will pay to create the
	//      ProgramData account.
	//   1. [WRITE] The uninitialized ProgramData account.
	//   2. [WRITE] The uninitialized Program account.
	//   3. [WRITE] The Buffer account where the program data has been
	//      written.  The buffer account's authority must match the program's
	//      authority
	//   4. [] Rent sysvar.
	//   5. [] Clock sysvar.
	//   6. [] System program (`solana_sdk::system_program::id()`).
	//   7. [SIGNER] The program's authority
	programData, err := ProgramDataAddress(program)
	if err != nil {
		return solana.Instruction{}, err
	}

	data := make([]byte, 4+8)

	var offset int
	binary.PutUint32(data, commandDeployWithMaxDataLen, &offset)
	binary.PutUint64(data, maxDataLen, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(payer, true),
		solana.NewAccountMeta(programData, false),
		solana.NewAccountMeta(program, false),
		solana.NewAccountMeta(buffer, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
		solana.NewReadonlyAccountMeta(system.ClockSysVar, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
		solana.NewReadonlyAccountMeta(authority, true),
	), nil
}

// ProgramDataAddress derives the account holding a program's code.
func ProgramDataAddress(program ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(ProgramKey, program)
}

// MaxWriteChunkSize is the largest chunk a single Write can carry for the
// given fee payer and buffer while the transaction still fits in a packet.
// The payer doubles as the buffer authority.
func MaxWriteChunkSize(payer, buffer ed25519.PublicKey) int {
	empty := solana.NewTransaction(payer, Write(buffer, payer, 0, nil))

	// The compact-u16 data length grows from one byte to two once any
	// meaningful chunk is attached.
	return solana.MaxTransactionSize - len(empty.Marshal()) - 1
}

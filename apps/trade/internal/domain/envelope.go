package domain

import "encoding/hex"

// 指令布局: [判别 1B][数量 u64 LE 8B][滑点 u32 LE 4B]
// 这是和链上程序的线协议，改动必须升版本
const (
	InstructionSize    = 13
	DiscriminantOffset = 0
	AmountOffset       = 1
	SlippageOffset     = 9
)

// EncodedInstruction 定长指令数据
type EncodedInstruction [InstructionSize]byte

// Bytes 返回副本，调用方改不到原值
func (e EncodedInstruction) Bytes() []byte {
	out := make([]byte, InstructionSize)
	copy(out, e[:])
	return out
}

func (e EncodedInstruction) Hex() string { return hex.EncodeToString(e[:]) }

// 账户表固定下标
const (
	AccountWallet = iota
	AccountPosition
	AccountMetadata
	AccountSystemProgram
	AccountRentSysvar
	AccountCount
)

// UnsignedEnvelope 未签名交易信封，构造后不可变
type UnsignedEnvelope struct {
	programID   Address
	instruction EncodedInstruction
	accounts    []AccountReference
	recentBlock string
	feePayer    Address
}

func NewUnsignedEnvelope(programID Address, ix EncodedInstruction, accounts []AccountReference, recentBlock string, feePayer Address) UnsignedEnvelope {
	cp := make([]AccountReference, len(accounts))
	copy(cp, accounts)
	return UnsignedEnvelope{
		programID:   programID,
		instruction: ix,
		accounts:    cp,
		recentBlock: recentBlock,
		feePayer:    feePayer,
	}
}

func (e UnsignedEnvelope) ProgramID() Address { return e.programID }

func (e UnsignedEnvelope) Instruction() EncodedInstruction { return e.instruction }

func (e UnsignedEnvelope) Accounts() []AccountReference {
	cp := make([]AccountReference, len(e.accounts))
	copy(cp, e.accounts)
	return cp
}

func (e UnsignedEnvelope) RecentBlockReference() string { return e.recentBlock }

func (e UnsignedEnvelope) FeePayer() Address { return e.feePayer }

func (e UnsignedEnvelope) IsZero() bool { return len(e.accounts) == 0 }

// SignedEnvelope 签名器产出：原信封 + 签名 + 上链字节
type SignedEnvelope struct {
	Envelope  UnsignedEnvelope
	Signature string
	Raw       []byte
}

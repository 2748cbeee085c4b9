package solana

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	ErrTimeout = fmt.Errorf("timeout")

	// ErrWalletNotConnected is returned by every signing operation while no
	// wallet is connected to the session.
	ErrWalletNotConnected = fmt.Errorf("wallet not connected")

	// ErrNotAuthority indicates that the connected wallet does not hold the
	// authority required by the instruction.
	ErrNotAuthority = fmt.Errorf("wallet is not the authority")

	// ErrAccountNotFound indicates that the requested account does not exist.
	ErrAccountNotFound = fmt.Errorf("account not found")

	// ErrNotTokenAccount indicates that an account is not owned by the SPL
	// token program or has unexpected layout.
	ErrNotTokenAccount = fmt.Errorf("not an spl token account")
)

// SPL token program errors.
var (
	ErrNotRentExempt                  = fmt.Errorf("lamport balance below rent-exempt threshold")
	ErrInsufficientFunds              = fmt.Errorf("insufficient funds")
	ErrInvalidMint                    = fmt.Errorf("invalid mint")
	ErrMintMismatch                   = fmt.Errorf("account not associated with this mint")
	ErrOwnerMismatch                  = fmt.Errorf("owner does not match")
	ErrFixedSupply                    = fmt.Errorf("fixed supply")
	ErrAlreadyInUse                   = fmt.Errorf("already in use")
	ErrInvalidNumberOfProvidedSigners = fmt.Errorf("invalid number of provided signers")
	ErrInvalidNumberOfRequiredSigners = fmt.Errorf("invalid number of required signers")
	ErrUninitializedState             = fmt.Errorf("state is uninitialized")
	ErrNativeNotSupported             = fmt.Errorf("instruction does not support native tokens")
	ErrNonNativeHasBalance            = fmt.Errorf("non-native account can only be closed if its balance is zero")
	ErrInvalidInstruction             = fmt.Errorf("invalid instruction")
	ErrInvalidState                   = fmt.Errorf("state is invalid for requested operation")
	ErrOverflow                       = fmt.Errorf("operation overflowed")
	ErrAuthorityTypeNotSupported      = fmt.Errorf("account does not support specified authority type")
	ErrMintCannotFreeze               = fmt.Errorf("this token mint cannot freeze accounts")
	ErrAccountFrozen                  = fmt.Errorf("account is frozen")
	ErrMintDecimalsMismatch           = fmt.Errorf("the provided decimals value different from the mint decimals")
	ErrNonNativeNotSupported          = fmt.Errorf("instruction does not support non-native tokens")
)

// https://github.com/solana-labs/solana-program-library/blob/master/token/program/src/error.rs
var customErrorMap = map[int]error{
	0:  ErrNotRentExempt,
	1:  ErrInsufficientFunds,
	2:  ErrInvalidMint,
	3:  ErrMintMismatch,
	4:  ErrOwnerMismatch,
	5:  ErrFixedSupply,
	6:  ErrAlreadyInUse,
	7:  ErrInvalidNumberOfProvidedSigners,
	8:  ErrInvalidNumberOfRequiredSigners,
	9:  ErrUninitializedState,
	10: ErrNativeNotSupported,
	11: ErrNonNativeHasBalance,
	12: ErrInvalidInstruction,
	13: ErrInvalidState,
	14: ErrOverflow,
	15: ErrAuthorityTypeNotSupported,
	16: ErrMintCannotFreeze,
	17: ErrAccountFrozen,
	18: ErrMintDecimalsMismatch,
	19: ErrNonNativeNotSupported,
}

// ProgramError is a custom error returned by a program other than SPL token,
// or an SPL token error with unknown code.
type ProgramError struct {
	Index   int
	Program solana.PublicKey
	Code    int
}

func (e ProgramError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed with custom error %d", e.Index, e.Program, e.Code)
}

// parsePreflightError maps an error returned by sendTransaction. programs
// lists program ids of the submitted instructions in order.
func parsePreflightError(origErr error, programs []solana.PublicKey) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(origErr, &rpcErr) {
		return origErr
	}
	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return origErr
	}
	errVal, ok := dataMap["err"]
	if !ok {
		return origErr
	}
	if err := parseErrorValue(errVal, programs); err != nil {
		return fmt.Errorf("%w (%s)", err, rpcErr.Message)
	}
	return origErr
}

func parseErrorValue(errorValue interface{}, programs []solana.PublicKey) error {
	if errorValue == nil {
		return nil
	}
	errMap, ok := errorValue.(map[string]interface{})
	if !ok {
		return nil
	}
	instructionErrorVal, ok := errMap["InstructionError"]
	if !ok {
		return nil
	}
	instructionErrorSlice, ok := instructionErrorVal.([]interface{})
	if !ok {
		return nil
	}
	if len(instructionErrorSlice) < 2 {
		return nil
	}
	index, ok := decodeNumber(instructionErrorSlice[0])
	if !ok {
		return nil
	}
	code, ok := decodeCustomError(instructionErrorSlice)
	if !ok {
		return nil
	}
	var program solana.PublicKey
	if index >= 0 && index < len(programs) {
		program = programs[index]
	}
	if program.Equals(solana.TokenProgramID) {
		if mappedErr, ok := customErrorMap[code]; ok {
			return mappedErr
		}
	}
	return ProgramError{
		Index:   index,
		Program: program,
		Code:    code,
	}
}

func decodeCustomError(instructionErrorSlice []interface{}) (int, bool) {
	customErrorStructMap, ok := instructionErrorSlice[1].(map[string]interface{})
	if !ok {
		return 0, false
	}
	if len(customErrorStructMap) != 1 {
		return 0, false
	}
	errorCodeRaw, ok := customErrorStructMap["Custom"]
	if !ok {
		return 0, false
	}
	return decodeNumber(errorCodeRaw)
}

func decodeNumber(raw interface{}) (int, bool) {
	switch num := raw.(type) {
	case json.Number: // This type comes from a Preflight error
		n, err := num.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64: // This type comes from a Transaction error
		return int(num), true
	}
	return 0, false
}

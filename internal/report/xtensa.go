package report

import (
	"fmt"

	"github.com/muurk/espcore/internal/notes"
)

// Xtensa special register indices as they appear in the crash-time
// register dump's (index, value) pairs.
const (
	regEPC1     = 177
	regEPC7     = 183
	regEPS2     = 194
	regEPS7     = 199
	regExccause = 232
	regExcvaddr = 238
)

// exccauseNames maps Xtensa EXCCAUSE codes to the panic handler's
// cause names.
var exccauseNames = map[uint32]string{
	0:  "IllegalInstruction",
	1:  "Syscall",
	2:  "InstructionFetchError",
	3:  "LoadStoreError",
	4:  "Level1Interrupt",
	5:  "Alloca",
	6:  "IntegerDivideByZero",
	8:  "Privileged",
	9:  "LoadStoreAlignment",
	12: "InstrPIFDataError",
	13: "LoadStorePIFDataError",
	14: "InstrPIFAddrError",
	15: "LoadStorePIFAddrError",
	16: "InstTLBMiss",
	17: "InstTLBMultiHit",
	18: "InstFetchPrivilege",
	20: "InstFetchProhibited",
	24: "LoadStoreTLBMiss",
	25: "LoadStoreTLBMultiHit",
	26: "LoadStorePrivilege",
	28: "LoadProhibited",
	29: "StoreProhibited",
}

// ExceptionRegister is one decoded exception-context register from the
// crash-time dump.
type ExceptionRegister struct {
	Name  string
	Value uint32
}

// exceptionRegName resolves an Xtensa special register index. Unknown
// indices return "".
func exceptionRegName(idx uint32) string {
	switch {
	case idx >= regEPC1 && idx <= regEPC7:
		return fmt.Sprintf("EPC%d", idx-regEPC1+1)
	case idx >= regEPS2 && idx <= regEPS7:
		return fmt.Sprintf("EPS%d", idx-regEPS2+2)
	case idx == regExccause:
		return "EXCCAUSE"
	case idx == regExcvaddr:
		return "EXCVADDR"
	}
	return ""
}

// ExccauseName returns the panic cause name for an EXCCAUSE value.
func ExccauseName(code uint32) string {
	if name, ok := exccauseNames[code]; ok {
		return name
	}
	return "Unknown"
}

// XtensaExceptionRegisters decodes the (index, value) pairs trailing
// the crashed-task marker. Registers with indices outside the known
// exception context are skipped; a trailing unpaired word is dropped.
func XtensaExceptionRegisters(snapshot notes.RegisterSnapshot) []ExceptionRegister {
	var regs []ExceptionRegister
	for i := 1; i+1 < len(snapshot); i += 2 {
		name := exceptionRegName(snapshot[i])
		if name == "" {
			continue
		}
		regs = append(regs, ExceptionRegister{Name: name, Value: snapshot[i+1]})
	}
	return regs
}

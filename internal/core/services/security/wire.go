package security

// Security (COMMAND_CLASS_SECURITY, 0x98) command bytes (spec §6).
const (
	CmdNetworkKeySet                      = 0x06
	CmdNetworkKeyVerify                   = 0x07
	CmdSchemeGet                          = 0x04
	CmdSchemeReport                       = 0x05
	CmdSchemeInherit                      = 0x08
	CmdNonceGet                           = 0x40
	CmdNonceReport                        = 0x80
	CmdMessageEncapsulation               = 0x81
	CmdMessageEncapsulationNonceGet       = 0xC1
	CmdCommandsSupportedGet               = 0x02
	CmdCommandsSupportedReport            = 0x03
)

// Encapsulation flags byte (spec §6, "Wire: S0 encapsulation").
const (
	FlagSequenced   = 0x80
	FlagSecondFrame = 0x40
	flagSeqNibbleMask = 0x0F
)

// MaxFrameDefault is the frame size budget used when the transport layer
// does not report a smaller MTU; fragmentation triggers above
// MaxFrameDefault-20 bytes of plaintext (spec §4.B step 3).
const MaxFrameDefault = 46

// fragmentThreshold returns the plaintext byte budget for a single,
// unfragmented S0 segment given the transport's max frame size.
func fragmentThreshold(maxFrame int) int {
	return maxFrame - 20
}

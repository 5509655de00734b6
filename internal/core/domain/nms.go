package domain

import "time"

// NMState enumerates the Network Management state machine's states (spec
// §4.G). "Retry" twins share the same handling logic as their base state
// and have no constants of their own: the drivers that retry keep their
// retry count locally, which keeps switch statements in the FSM
// implementation from duplicating every case.
type NMState int

const (
	NMIdle NMState = iota
	NMWaitingForAdd
	NMNodeFound
	NMWaitForProtocol
	NMWaitForSecureAdd
	NMWaitForProbeAfterAdd
	NMWaitDhcp
	NMSetDefault
	NMLearnMode
	NMLearnModeStarted
	NMWaitForSecureLearn
	NMWaitForMdns
	NMReplaceFailedReq
	NMPrepareSucInclusion
	NMWaitForSucInclusion
	NMProxyInclusionWaitNif
	NMWaitForSelfDestruct
	NMWaitForTxToSelfDestruct
	NMWaitForSelfDestructRemoval
	NMWaitForNeighborUpdateAfterSecureAdd
	NMWaitingForNodeRemoval
	NMWaitingForFailNodeRemoval
	NMWaitingForNodeNeighUpdate
	NMWaitingForReturnRouteAssign
	NMWaitingForReturnRouteDelete
	NMWaitingForProbe
	NMNetworkUpdate
	NMWaitForNodeInfoProbe
	NMSendingNodeInfo
	NMRemovingAssociations
)

func (s NMState) String() string {
	names := [...]string{
		"Idle", "WaitingForAdd", "NodeFound", "WaitForProtocol",
		"WaitForSecureAdd", "WaitForProbeAfterAdd", "WaitDhcp", "SetDefault",
		"LearnMode", "LearnModeStarted", "WaitForSecureLearn", "WaitForMdns",
		"ReplaceFailedReq", "PrepareSucInclusion", "WaitForSucInclusion",
		"ProxyInclusionWaitNif", "WaitForSelfDestruct", "WaitForTxToSelfDestruct",
		"WaitForSelfDestructRemoval", "WaitForNeighborUpdateAfterSecureAdd",
		"WaitingForNodeRemoval", "WaitingForFailNodeRemoval",
		"WaitingForNodeNeighUpdate", "WaitingForReturnRouteAssign",
		"WaitingForReturnRouteDelete", "WaitingForProbe", "NetworkUpdate",
		"WaitForNodeInfoProbe", "SendingNodeInfo", "RemovingAssociations",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// NMFlags is the sub-state flag set carried alongside the state (spec
// §4.G).
type NMFlags uint16

const (
	FlagS2Add NMFlags = 1 << iota
	FlagProxyInclusion
	FlagLearnmodeNew
	FlagLearnmodeNwi
	FlagLearnmodeNwe
	FlagControllerReplication
	FlagSmartStartInclusion
	FlagReportDsk
	FlagCsaInclusion
)

func (f NMFlags) Has(bit NMFlags) bool { return f&bit == bit }

// NMEvent enumerates the events the NMS mailbox accepts (spec §4.G).
type NMEvent int

const (
	EvNodeAdd NMEvent = iota
	EvNodeAddS2
	EvNodeAddStop
	EvNodeAddSmartStart
	EvAddLearnReady
	EvAddNodeFound
	EvAddController
	EvAddProtocolDone
	EvAddEndNode
	EvAddFailed
	EvAddNotPrimary
	EvAddNodeStatusDone
	EvAddNodeStatusSflndDone
	EvSecurityDone
	EvSecurityReqKeys
	EvSecurityKeyChallenge
	EvSecurityKeysSet
	EvSecurityDskSet
	EvNodeProbeDone
	EvDhcpDone
	EvReplaceFailedStart
	EvReplaceFailedStartS2
	EvReplaceFailedStop
	EvReplaceFailedDone
	EvReplaceFailedFail
	EvLearnSet
	EvRequestNodeList
	EvRequestFailedNodeList
	EvProxyComplete
	EvStartProxyInclusion
	EvStartProxyReplace
	EvNodeInfo
	EvFrameReceived
	EvAllProbed
	EvTimeout
	EvMdnsExit
	EvS0Started
	EvTxDoneSelfDestruct
	EvRemoveFailedOk
	EvRemoveFailedFail
	EvNeighborUpdateAfterSecureAddDone
	EvFailedNodeRemove
)

func (e NMEvent) String() string {
	names := [...]string{
		"NodeAdd", "NodeAddS2", "NodeAddStop", "NodeAddSmartStart",
		"AddLearnReady", "AddNodeFound", "AddController", "AddProtocolDone",
		"AddEndNode", "AddFailed", "AddNotPrimary", "AddNodeStatusDone",
		"AddNodeStatusSflndDone", "SecurityDone", "SecurityReqKeys",
		"SecurityKeyChallenge", "SecurityKeysSet", "SecurityDskSet",
		"NodeProbeDone", "DhcpDone", "ReplaceFailedStart",
		"ReplaceFailedStartS2", "ReplaceFailedStop", "ReplaceFailedDone",
		"ReplaceFailedFail", "LearnSet", "RequestNodeList",
		"RequestFailedNodeList", "ProxyComplete", "StartProxyInclusion",
		"StartProxyReplace", "NodeInfo", "FrameReceived", "AllProbed",
		"Timeout", "MdnsExit", "S0Started", "TxDoneSelfDestruct",
		"RemoveFailedOk", "RemoveFailedFail", "NeighborUpdateAfterSecureAddDone",
		"FailedNodeRemove",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return "Unknown"
}

// LearnMode distinguishes the ways SetLearnMode can be invoked (spec
// §4.G, "Exclusion / Learn mode").
type LearnMode int

const (
	LearnClassic LearnMode = iota
	LearnNWI
	LearnNWE
)

// Self-destruct timer budgets (spec §4.G scenario S6).
const (
	SelfDestructWait        = 3 * time.Second
	SelfDestructRemovalWait = 20 * time.Second
	SelfDestructRetryDelay  = 240 * time.Second
)

// DhcpWait bounds NMWaitDhcp: how long inclusion waits for EvDhcpDone
// after the post-add probe completes before replying anyway (spec
// §4.G, inclusion happy path step 8-9).
const DhcpWait = 5 * time.Second

// Learn-mode retry budget for NWI/NWE exclusion (spec §4.G "Exclusion /
// Learn mode"): CLASSIC is single-shot, NWI/NWE repeat up to this many
// times spaced by LearnModeRetryInterval (plus jitter).
const (
	LearnModeRetryAttempts = 4
	LearnModeRetryInterval = 4 * time.Second
)

// InclusionControllerHandoverTimeout bounds the wait for the SIS's
// matching INCLUSION_CONTROLLER_COMPLETE after we request a handover
// (spec §4.G "Inclusion controller delegation").
const InclusionControllerHandoverTimeout = 4*60*time.Second + 2*time.Second

package domain

import "time"

// NodeState is the resource-directory interview FSM state (spec §4.E).
type NodeState int

const (
	NodeCreated NodeState = iota
	NodeProbeNodeInfo
	NodeProbeProductID
	NodeEnumerateEndpoints
	NodeFindEndpoints
	NodeProbeEndpoints
	NodeCheckWuCcVersion
	NodeGetWuCap
	NodeSetWuInterval
	NodeAssignReturnRoute
	NodeProbeWakeUpInterval
	NodeDone
	NodeProbeFail
	NodeFailing
)

func (s NodeState) String() string {
	names := [...]string{
		"Created", "ProbeNodeInfo", "ProbeProductId", "EnumerateEndpoints",
		"FindEndpoints", "ProbeEndpoints", "CheckWuCcVersion", "GetWuCap",
		"SetWuInterval", "AssignReturnRoute", "ProbeWakeUpInterval", "Done",
		"ProbeFail", "Failing",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// Terminal reports whether s is a state the probe FSM no longer advances
// from without external intervention (re-probe, alive notification).
func (s NodeState) Terminal() bool {
	return s == NodeDone || s == NodeProbeFail || s == NodeFailing
}

// EndpointState is the per-endpoint interview sub-FSM state (spec §4.E).
type EndpointState int

const (
	EndpointProbeInfo EndpointState = iota
	EndpointProbeAggregated
	EndpointProbeSec2C2
	EndpointProbeSec2C1
	EndpointProbeSec2C0
	EndpointProbeSec0
	EndpointProbeVersion
	EndpointProbeZWavePlus
	EndpointMdnsProbe
	EndpointDone
)

func (s EndpointState) String() string {
	names := [...]string{
		"ProbeInfo", "ProbeAggregatedEndpoints", "ProbeSec2C2", "ProbeSec2C1",
		"ProbeSec2C0", "ProbeSec0", "ProbeVersion", "ProbeZwavePlus",
		"MdnsProbe", "Done",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// NodeMode mirrors the controller's notion of a node's listening
// behaviour; used to size inclusion timeouts (spec §4.E).
type NodeMode int

const (
	ModeUnknown NodeMode = iota
	ModeAlwaysListening
	ModeFLiRS
	ModeNonListening
)

// NodePropertiesFlags carries transient properties cleared on probe
// completion.
type NodePropertiesFlags uint8

const (
	PropJustAdded NodePropertiesFlags = 1 << iota
	PropAddedByMe
)

// ProbeFlags records probing progress/outcome.
type ProbeFlags uint8

const (
	ProbePending ProbeFlags = iota
	ProbeCompleted
)

// Endpoint is one endpoint's resource-directory record.
type Endpoint struct {
	EndpointID     EndpointID
	State          EndpointState
	EndpointInfo   []byte // raw command-class list from the endpoint's NIF
	InstallerIcon  uint16
	UserIcon       uint16
}

// NodeEntry is the full resource-directory record for one node (spec §3,
// "Node DB entry").
type NodeEntry struct {
	NodeID         NodeID
	State          NodeState
	Mode           NodeMode
	SecurityFlags  SecurityFlags
	NodeType       byte
	ManufacturerID uint16
	ProductType    uint16
	ProductID      uint16
	WakeupInterval uint32
	LastUpdate     time.Time
	LastAwake      time.Time
	ProbeFlags     ProbeFlags
	PropFlags      NodePropertiesFlags
	Endpoints      []Endpoint

	// AddedByMe records whether this gateway performed the inclusion
	// (spec §4.E security-class probing rules, testable property 4).
	AddedByMe bool
}

// GrantScheme sets the security flag for scheme and, per spec invariant
// "scheme monotonicity", never clears a bit this way - only Downgrade
// does that, and only when AddedByMe is false.
func (n *NodeEntry) GrantScheme(s Scheme) {
	if bit := FlagForScheme(s); bit != 0 {
		n.SecurityFlags = n.SecurityFlags.With(bit)
	}
}

// Downgrade clears the security flag for scheme, but only if this
// gateway did not perform the original inclusion - clearing a
// self-granted key would violate testable property 4.
func (n *NodeEntry) Downgrade(s Scheme) {
	if n.AddedByMe {
		return
	}
	if bit := FlagForScheme(s); bit != 0 {
		n.SecurityFlags = n.SecurityFlags.Without(bit)
	}
}

// InclusionTimeout computes the inclusion timeout budget for rd (spec
// §4.E): base 60s plus a per-node contribution keyed by listening mode.
func InclusionTimeout(nodes []NodeEntry) time.Duration {
	total := 60 * time.Second
	for _, n := range nodes {
		switch n.Mode {
		case ModeFLiRS:
			total += 3517 * time.Millisecond
		case ModeAlwaysListening:
			total += 217 * time.Millisecond
		default:
			total += 732 * time.Millisecond
		}
	}
	return total
}

package api

// ProtocolVersion is stamped into every header produced by this package.
const ProtocolVersion uint64 = 1

// ErrorCode classifies failures carried in a ResponseHeader.
type ErrorCode int32

const (
	ErrorCode_OK                  ErrorCode = 0
	ErrorCode_CLUSTER_MISMATCH    ErrorCode = 1
	ErrorCode_NOT_LEADER          ErrorCode = 2
	ErrorCode_INVARIANT_VIOLATION ErrorCode = 3
	ErrorCode_NO_LEADER_KNOWN     ErrorCode = 4
	ErrorCode_INTERNAL            ErrorCode = 5
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_OK:                  "OK",
	ErrorCode_CLUSTER_MISMATCH:    "CLUSTER_MISMATCH",
	ErrorCode_NOT_LEADER:          "NOT_LEADER",
	ErrorCode_INVARIANT_VIOLATION: "INVARIANT_VIOLATION",
	ErrorCode_NO_LEADER_KNOWN:     "NO_LEADER_KNOWN",
	ErrorCode_INTERNAL:            "INTERNAL",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

type RequestHeader struct {
	ProtocolVersion uint64 `json:"protocolVersion"`
	ClusterId       uint64 `json:"clusterId"`
	MemberId        uint64 `json:"memberId,omitempty"`
	TraceId         string `json:"traceId,omitempty"`
}

func (h *RequestHeader) GetClusterId() uint64 {
	if h == nil {
		return 0
	}
	return h.ClusterId
}

func (h *RequestHeader) GetTraceId() string {
	if h == nil {
		return ""
	}
	return h.TraceId
}

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

type ResponseHeader struct {
	ProtocolVersion uint64 `json:"protocolVersion"`
	ClusterId       uint64 `json:"clusterId"`
	TraceId         string `json:"traceId,omitempty"`
	Error           *Error `json:"error,omitempty"`
}

func (h *ResponseHeader) GetClusterId() uint64 {
	if h == nil {
		return 0
	}
	return h.ClusterId
}

// GetCode returns ErrorCode_OK when the header carries no error.
func (h *ResponseHeader) GetCode() ErrorCode {
	if h == nil || h.Error == nil {
		return ErrorCode_OK
	}
	return h.Error.Code
}

func (h *ResponseHeader) GetMessage() string {
	if h == nil || h.Error == nil {
		return ""
	}
	return h.Error.Message
}

type Peer struct {
	Id   uint64 `json:"id"`
	Addr string `json:"addr"`
}

func (p *Peer) GetId() uint64 {
	if p == nil {
		return 0
	}
	return p.Id
}

func (p *Peer) GetAddr() string {
	if p == nil {
		return ""
	}
	return p.Addr
}

type NodeStat struct {
	Rcus        int64             `json:"rcus"`
	Wcus        int64             `json:"wcus"`
	TableCount  int64             `json:"tableCount"`
	RegionCount int64             `json:"regionCount"`
	CpuUsage    float64           `json:"cpuUsage"`
	Load        float64           `json:"load"`
	ReadIoRate  float64           `json:"readIoRate"`
	WriteIoRate float64           `json:"writeIoRate"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

func (s *NodeStat) GetAttrs() map[string]string {
	if s == nil {
		return nil
	}
	return s.Attrs
}

type RegionStat struct {
	RegionId   uint64            `json:"regionId"`
	TableName  string            `json:"tableName"`
	Rcus       int64             `json:"rcus"`
	Wcus       int64             `json:"wcus"`
	ApproxSize int64             `json:"approxSize"`
	ApproxRows int64             `json:"approxRows"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

type ReplicaStat struct {
	Peer      *Peer `json:"peer"`
	InSync    bool  `json:"inSync"`
	IsLearner bool  `json:"isLearner"`
}

// HeartbeatRequest is one Report sent by a node on its heartbeat stream.
type HeartbeatRequest struct {
	Header       *RequestHeader `json:"header"`
	Peer         *Peer          `json:"peer"`
	IsLeader     bool           `json:"isLeader"`
	ReportIntvMs int64          `json:"reportIntervalMs"`
	NodeStat     *NodeStat      `json:"nodeStat"`
	RegionStats  []*RegionStat  `json:"regionStats,omitempty"`
	ReplicaStats []*ReplicaStat `json:"replicaStats,omitempty"`
}

// HeartbeatResponse is the Acknowledgement for one HeartbeatRequest.
type HeartbeatResponse struct {
	Header        *ResponseHeader `json:"header"`
	Authoritative bool            `json:"authoritative"`
	LeaderHint    *Peer           `json:"leaderHint,omitempty"`
	Instructions  [][]byte        `json:"instructions,omitempty"`
}

type AskLeaderRequest struct {
	Header *RequestHeader `json:"header"`
}

type AskLeaderResponse struct {
	Header *ResponseHeader `json:"header"`
	Leader *Peer           `json:"leader,omitempty"`
}

type ListNodesRequest struct {
	Header *RequestHeader `json:"header"`
}

type NodeInfo struct {
	Peer          *Peer          `json:"peer"`
	IsLeader      bool           `json:"isLeader"`
	ReportIntvMs  int64          `json:"reportIntervalMs"`
	NodeStat      *NodeStat      `json:"nodeStat"`
	RegionStats   []*RegionStat  `json:"regionStats,omitempty"`
	ReplicaStats  []*ReplicaStat `json:"replicaStats,omitempty"`
	UpdatedAtMs   int64          `json:"updatedAtMs"`
	DeadlineMs    int64          `json:"deadlineMs"`
	Authoritative bool           `json:"authoritative"`
}

func (n *NodeInfo) GetPeer() *Peer {
	if n == nil {
		return nil
	}
	return n.Peer
}

func (n *NodeInfo) GetNodeStat() *NodeStat {
	if n == nil {
		return nil
	}
	return n.NodeStat
}

type ListNodesResponse struct {
	Header *ResponseHeader `json:"header"`
	Nodes  []*NodeInfo     `json:"nodes"`
}

type RegionReporter struct {
	Peer         *Peer       `json:"peer"`
	Role         string      `json:"role"`
	Stat         *RegionStat `json:"stat"`
	ReportedAtMs int64       `json:"reportedAtMs"`
}

type RegionInfo struct {
	RegionId  uint64            `json:"regionId"`
	TableName string            `json:"tableName"`
	Leader    *Peer             `json:"leader,omitempty"`
	Followers []*ReplicaStat    `json:"followers,omitempty"`
	Reporters []*RegionReporter `json:"reporters,omitempty"`
	Conflict  bool              `json:"conflict"`
	Claimants []*Peer           `json:"claimants,omitempty"`
}

type GetRegionRequest struct {
	Header   *RequestHeader `json:"header"`
	RegionId uint64         `json:"regionId"`
}

type GetRegionResponse struct {
	Header *ResponseHeader `json:"header"`
	Region *RegionInfo     `json:"region,omitempty"`
}

type ListRegionsRequest struct {
	Header *RequestHeader `json:"header"`
	After  uint64         `json:"after,omitempty"`
	Limit  int32          `json:"limit,omitempty"`
}

type ListRegionsResponse struct {
	Header  *ResponseHeader `json:"header"`
	Regions []*RegionInfo   `json:"regions"`
}

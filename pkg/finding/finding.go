package finding

import (
	"github.com/go-json-experiment/json/jsontext"
)

// Kind names a finding variant. The values double as metric labels and
// result-file keys.
type Kind string

const (
	KindProbeRequest        Kind = "warRequests"
	KindCrossContextMessage Kind = "postMessages"
	KindExtensionMessage    Kind = "sendMessages"
	KindPortMessage         Kind = "portPostMessages"
	KindConnectAttempt      Kind = "connects"
)

// Kinds lists every variant in result order.
func Kinds() []Kind {
	return []Kind{
		KindCrossContextMessage,
		KindExtensionMessage,
		KindPortMessage,
		KindConnectAttempt,
		KindProbeRequest,
	}
}

// Source records which event feed detected a probe.
type Source string

const (
	// SourceNetwork is a Network.requestWillBeSent event.
	SourceNetwork Source = "network"
	// SourceFetchLog is a "Fetch API cannot load" Log.entryAdded line.
	SourceFetchLog Source = "fetch-log"
)

// Empty JSON values used when a payload is absent.
var (
	EmptyString = jsontext.Value(`""`)
	Null        = jsontext.Value(`null`)
)

// CallFrame is one frame of the JavaScript stack that triggered a finding.
type CallFrame struct {
	FunctionName string `json:"functionName"`
	ScriptID     string `json:"scriptId"`
	URL          string `json:"url"`
	LineNumber   int64  `json:"lineNumber"`
	ColumnNumber int64  `json:"columnNumber"`
}

// Finding is implemented only by the variants in this package.
type Finding interface {
	Kind() Kind
	Accept(v Visitor) error
	sealed()
}

// Visitor handles each finding variant.
type Visitor interface {
	VisitProbeRequest(*ProbeRequest) error
	VisitCrossContextMessage(*CrossContextMessage) error
	VisitExtensionMessage(*ExtensionMessage) error
	VisitPortMessage(*PortMessage) error
	VisitConnectAttempt(*ConnectAttempt) error
}

// ProbeRequest is an attempt to load a web-accessible resource of an
// extension.
type ProbeRequest struct {
	URL          string      `json:"url"`
	Source       Source      `json:"source"`
	DocumentURL  string      `json:"documentURL,omitempty"`
	ResourceType string      `json:"type,omitempty"`
	Initiator    string      `json:"initiator,omitempty"`
	CallFrames   []CallFrame `json:"callFrames"`
}

// CrossContextMessage is a message event delivered to the page's window.
// Data is never null; an absent payload is the empty JSON string.
type CrossContextMessage struct {
	Data       jsontext.Value `json:"data"`
	Origin     string         `json:"origin"`
	CallFrames []CallFrame    `json:"callFrames,omitempty"`
}

// ExtensionMessage is a runtime.sendMessage call. An empty ExtensionID
// addresses no particular extension.
type ExtensionMessage struct {
	ExtensionID string         `json:"extensionId"`
	Data        jsontext.Value `json:"data"`
	CallFrames  []CallFrame    `json:"callFrames"`
}

// PortMessage is a postMessage sent on a runtime.connect port.
type PortMessage struct {
	ExtensionID string         `json:"extensionId"`
	Data        jsontext.Value `json:"data"`
	CallFrames  []CallFrame    `json:"callFrames"`
}

// ConnectAttempt is a runtime.connect call.
type ConnectAttempt struct {
	ExtensionID string         `json:"extensionId"`
	ConnectInfo jsontext.Value `json:"connectInfo"`
	CallFrames  []CallFrame    `json:"callFrames"`
}

func (*ProbeRequest) Kind() Kind        { return KindProbeRequest }
func (*CrossContextMessage) Kind() Kind { return KindCrossContextMessage }
func (*ExtensionMessage) Kind() Kind    { return KindExtensionMessage }
func (*PortMessage) Kind() Kind         { return KindPortMessage }
func (*ConnectAttempt) Kind() Kind      { return KindConnectAttempt }

func (f *ProbeRequest) Accept(v Visitor) error        { return v.VisitProbeRequest(f) }
func (f *CrossContextMessage) Accept(v Visitor) error { return v.VisitCrossContextMessage(f) }
func (f *ExtensionMessage) Accept(v Visitor) error    { return v.VisitExtensionMessage(f) }
func (f *PortMessage) Accept(v Visitor) error         { return v.VisitPortMessage(f) }
func (f *ConnectAttempt) Accept(v Visitor) error      { return v.VisitConnectAttempt(f) }

func (*ProbeRequest) sealed()        {}
func (*CrossContextMessage) sealed() {}
func (*ExtensionMessage) sealed()    {}
func (*PortMessage) sealed()         {}
func (*ConnectAttempt) sealed()      {}

// OrEmpty returns v, or EmptyString when v is absent or null.
func OrEmpty(v jsontext.Value) jsontext.Value {
	if len(v) == 0 || v.Kind() == 'n' {
		return EmptyString
	}
	return v
}

// OrNull returns v, or Null when v is absent.
func OrNull(v jsontext.Value) jsontext.Value {
	if len(v) == 0 {
		return Null
	}
	return v
}

package collector

import (
	"fmt"
	"strings"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/jsonutil"
)

// Schemes through which a page can address an installed extension.
var Schemes = []string{
	"chrome-extension",
	"moz-extension",
	"opera-extension",
	"ms-browser-extension",
	"chrome",
}

// Console tags written by the instrumentation script.
const (
	TagPostMessage     = "PostMessageObject"
	TagSendMessage     = "SendMessageObject"
	TagPortPostMessage = "PortPostMessageObject"
	TagConnect         = "ConnectObject"
	TagError           = "Error"
)

const fetchPrefix = "Fetch API cannot load "

// IsExtensionURL reports whether rawURL uses one of Schemes.
func IsExtensionURL(rawURL string) bool {
	i := strings.IndexByte(rawURL, ':')
	if i <= 0 {
		return false
	}
	scheme := strings.ToLower(rawURL[:i])
	for _, s := range Schemes {
		if scheme == s {
			return true
		}
	}
	return false
}

func hasSchemePrefix(s string) bool {
	for _, scheme := range Schemes {
		if len(s) > len(scheme)+3 && strings.EqualFold(s[:len(scheme)], scheme) && s[len(scheme):len(scheme)+3] == "://" {
			return true
		}
	}
	return false
}

// ClassifyRequest returns a probe for requests to an extension scheme and nil
// for everything else.
func ClassifyRequest(ev *network.EventRequestWillBeSent) *finding.ProbeRequest {
	if ev == nil || ev.Request == nil || !IsExtensionURL(ev.Request.URL) {
		return nil
	}
	p := &finding.ProbeRequest{
		URL:          ev.Request.URL,
		Source:       finding.SourceNetwork,
		DocumentURL:  ev.DocumentURL,
		ResourceType: string(ev.Type),
	}
	if ev.Initiator != nil {
		p.Initiator = string(ev.Initiator.Type)
		p.CallFrames = callFrames(ev.Initiator.Stack)
	}
	return p
}

// ExtractFetchURL pulls the extension URL out of a "Fetch API cannot load"
// error line. The URL runs up to the first ". URL" that follows it; without
// that marker it runs to the first whitespace, less a trailing period.
func ExtractFetchURL(text string) (string, bool) {
	i := strings.Index(text, fetchPrefix)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(fetchPrefix):]
	if !hasSchemePrefix(rest) {
		return "", false
	}
	if j := strings.Index(rest, ". URL"); j >= 0 {
		return rest[:j], true
	}
	if j := strings.IndexAny(rest, " \t\r\n"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSuffix(rest, "."), true
}

// ClassifyLogEntry returns a probe for fetch() calls to extension schemes.
// These never show up as network requests, only as console errors.
func ClassifyLogEntry(e *cdplog.Entry) *finding.ProbeRequest {
	if e == nil {
		return nil
	}
	u, ok := ExtractFetchURL(e.Text)
	if !ok {
		return nil
	}
	return &finding.ProbeRequest{
		URL:          u,
		Source:       finding.SourceFetchLog,
		DocumentURL:  e.URL,
		ResourceType: string(network.ResourceTypeFetch),
		Initiator:    string(network.InitiatorTypeScript),
		CallFrames:   callFrames(e.StackTrace),
	}
}

// ClassifyConsole maps an instrumentation console call to a finding.
// It returns (nil, nil) for console output that is not instrumentation,
// a *ScriptError for the Error tag and ErrMalformed when a recognized tag
// carries arguments that do not decode.
func ClassifyConsole(ev *runtime.EventConsoleAPICalled) (finding.Finding, error) {
	if ev == nil || len(ev.Args) == 0 {
		return nil, nil
	}
	tag, ok := stringArg(ev.Args, 0)
	if !ok {
		return nil, nil
	}

	frames := callFrames(ev.StackTrace)
	switch tag {
	case TagPostMessage:
		return postMessage(ev.Args, frames)
	case TagSendMessage:
		id, data, err := messageArgs(tag, ev.Args)
		if err != nil {
			return nil, err
		}
		return &finding.ExtensionMessage{ExtensionID: id, Data: data, CallFrames: frames}, nil
	case TagPortPostMessage:
		id, data, err := messageArgs(tag, ev.Args)
		if err != nil {
			return nil, err
		}
		return &finding.PortMessage{ExtensionID: id, Data: data, CallFrames: frames}, nil
	case TagConnect:
		id, info, err := messageArgs(tag, ev.Args)
		if err != nil {
			return nil, err
		}
		return &finding.ConnectAttempt{ExtensionID: id, ConnectInfo: info, CallFrames: frames}, nil
	case TagError:
		return nil, scriptError(ev.Args)
	}
	return nil, nil
}

type postMessagePayload struct {
	Data   jsontext.Value `json:"data"`
	Origin jsontext.Value `json:"origin"`
}

func postMessage(args []*runtime.RemoteObject, frames []finding.CallFrame) (finding.Finding, error) {
	raw, ok := stringArg(args, 1)
	if !ok {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, TagPostMessage)
	}
	var p postMessagePayload
	if err := jsonutil.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, TagPostMessage, err)
	}
	origin := ""
	if p.Origin.Kind() == '"' {
		_ = jsonutil.Unmarshal(p.Origin, &origin)
	}
	return &finding.CrossContextMessage{
		Data:       finding.OrEmpty(p.Data),
		Origin:     origin,
		CallFrames: frames,
	}, nil
}

// messageArgs decodes the (extension id, JSON payload) pair shared by the
// send, port and connect tags. A non-string id means no target was given.
func messageArgs(tag string, args []*runtime.RemoteObject) (string, jsontext.Value, error) {
	id, _ := stringArg(args, 1)
	raw, ok := stringArg(args, 2)
	if !ok {
		return id, finding.Null, nil
	}
	v := jsontext.Value(raw)
	if !v.IsValid() {
		return "", nil, fmt.Errorf("%w: %s payload is not JSON", ErrMalformed, tag)
	}
	return id, v, nil
}

func scriptError(args []*runtime.RemoteObject) *ScriptError {
	se := &ScriptError{}
	if len(args) < 2 || args[1] == nil || args[1].Preview == nil {
		return se
	}
	for _, p := range args[1].Preview.Properties {
		switch p.Name {
		case "location":
			se.Location = p.Value
		case "errorMessage":
			se.Message = p.Value
		}
	}
	return se
}

// stringArg returns args[i] when it is a JS string.
func stringArg(args []*runtime.RemoteObject, i int) (string, bool) {
	if i >= len(args) || args[i] == nil || args[i].Type != runtime.TypeString {
		return "", false
	}
	var s string
	if err := jsonutil.Unmarshal(args[i].Value, &s); err != nil {
		return "", false
	}
	return s, true
}

func callFrames(st *runtime.StackTrace) []finding.CallFrame {
	if st == nil || len(st.CallFrames) == 0 {
		return nil
	}
	out := make([]finding.CallFrame, 0, len(st.CallFrames))
	for _, f := range st.CallFrames {
		if f == nil {
			continue
		}
		out = append(out, finding.CallFrame{
			FunctionName: f.FunctionName,
			ScriptID:     string(f.ScriptID),
			URL:          f.URL,
			LineNumber:   f.LineNumber,
			ColumnNumber: f.ColumnNumber,
		})
	}
	return out
}

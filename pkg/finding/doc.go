// Package finding defines the typed records a page visit produces.
//
// A Finding is one of five variants:
//
//   - ProbeRequest: a load through an extension-addressable URL scheme
//   - CrossContextMessage: a window.postMessage observed on the page
//   - ExtensionMessage: a runtime.sendMessage call
//   - PortMessage: a postMessage on a port returned by runtime.connect
//   - ConnectAttempt: a runtime.connect call
//
// Consumers switch over variants through Visitor. Adding a variant adds a
// Visitor method, so every consumer stops compiling until it handles it.
//
// Usage:
//
//	res := &finding.PageResult{URL: url, ScanTime: time.Now()}
//	res.Add(&finding.ConnectAttempt{ExtensionID: "abc", ConnectInfo: info})
//	err := res.Walk(store)
package finding

package finding

import (
	"time"
)

// PageResult holds every finding of one page visit. It is not mutated once
// the scanner hands it on.
type PageResult struct {
	URL              string                 `json:"url"`
	ScanTime         time.Time              `json:"scanTime,format:unix"`
	PostMessages     []*CrossContextMessage `json:"postMessages"`
	SendMessages     []*ExtensionMessage    `json:"sendMessages"`
	PortPostMessages []*PortMessage         `json:"portPostMessages"`
	Connects         []*ConnectAttempt      `json:"connects"`
	WARRequests      []*ProbeRequest        `json:"warRequests"`
}

// Add appends f to the list of its variant.
func (r *PageResult) Add(f Finding) {
	_ = f.Accept(appender{r})
}

// Walk visits every finding in result order and stops at the first error.
func (r *PageResult) Walk(v Visitor) error {
	for _, f := range r.Findings() {
		if err := f.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

// Findings returns all findings in result order.
func (r *PageResult) Findings() []Finding {
	out := make([]Finding, 0, r.Total())
	for _, f := range r.PostMessages {
		out = append(out, f)
	}
	for _, f := range r.SendMessages {
		out = append(out, f)
	}
	for _, f := range r.PortPostMessages {
		out = append(out, f)
	}
	for _, f := range r.Connects {
		out = append(out, f)
	}
	for _, f := range r.WARRequests {
		out = append(out, f)
	}
	return out
}

// Counts returns the number of findings per kind.
func (r *PageResult) Counts() map[Kind]int {
	return map[Kind]int{
		KindCrossContextMessage: len(r.PostMessages),
		KindExtensionMessage:    len(r.SendMessages),
		KindPortMessage:         len(r.PortPostMessages),
		KindConnectAttempt:      len(r.Connects),
		KindProbeRequest:        len(r.WARRequests),
	}
}

// Total returns the number of findings across all kinds.
func (r *PageResult) Total() int {
	return len(r.PostMessages) + len(r.SendMessages) + len(r.PortPostMessages) +
		len(r.Connects) + len(r.WARRequests)
}

type appender struct{ r *PageResult }

func (a appender) VisitProbeRequest(f *ProbeRequest) error {
	a.r.WARRequests = append(a.r.WARRequests, f)
	return nil
}

func (a appender) VisitCrossContextMessage(f *CrossContextMessage) error {
	a.r.PostMessages = append(a.r.PostMessages, f)
	return nil
}

func (a appender) VisitExtensionMessage(f *ExtensionMessage) error {
	a.r.SendMessages = append(a.r.SendMessages, f)
	return nil
}

func (a appender) VisitPortMessage(f *PortMessage) error {
	a.r.PortPostMessages = append(a.r.PortPostMessages, f)
	return nil
}

func (a appender) VisitConnectAttempt(f *ConnectAttempt) error {
	a.r.Connects = append(a.r.Connects, f)
	return nil
}

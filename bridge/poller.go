package bridge

import "time"

type PollerOptions struct {
	// Minimum time between any two status requests.
	MinInterval time.Duration
	// Poll while the last activity is younger than this.
	ActivityWindow time.Duration
	// Do not poll for activity younger than this; it is covered by the follow-up request.
	ActivityMinAge time.Duration
	// Unconditional poll interval. Zero disables it.
	HeartbeatInterval time.Duration
}

var DefaultPollerOptions = PollerOptions{
	MinInterval:       100 * time.Millisecond,
	ActivityWindow:    3 * time.Second,
	ActivityMinAge:    150 * time.Millisecond,
	HeartbeatInterval: time.Second,
}

// Poller decides when to request a status report, based on recent activity.
type Poller struct {
	options           PollerOptions
	connected         bool
	lastActivity      time.Time
	lastStatusRequest time.Time
}

func NewPoller(options PollerOptions) *Poller {
	return &Poller{options: options}
}

// Start is called on connection.
func (p *Poller) Start() {
	p.Reset()
	p.connected = true
}

// Reset is called on disconnection.
func (p *Poller) Reset() {
	p.connected = false
	p.lastActivity = time.Time{}
	p.lastStatusRequest = time.Time{}
}

// MarkActivity advances the activity clock. It never goes backwards.
func (p *Poller) MarkActivity(now time.Time) {
	if now.After(p.lastActivity) {
		p.lastActivity = now
	}
}

func (p *Poller) MarkStatusRequest(now time.Time) {
	if now.After(p.lastStatusRequest) {
		p.lastStatusRequest = now
	}
}

func (p *Poller) LastActivity() time.Time {
	return p.lastActivity
}

// NextStatusRequestAllowed returns the earliest time a status request may be sent.
func (p *Poller) NextStatusRequestAllowed() time.Time {
	if p.lastStatusRequest.IsZero() {
		return time.Time{}
	}
	return p.lastStatusRequest.Add(p.options.MinInterval)
}

// StatusRequestAllowed enforces the minimum interval between status requests. All status
// requests, from polling or not, must be gated by it.
func (p *Poller) StatusRequestAllowed(now time.Time) bool {
	return p.connected && !now.Before(p.NextStatusRequestAllowed())
}

func (p *Poller) active(now time.Time) bool {
	if p.lastActivity.IsZero() {
		return false
	}
	age := now.Sub(p.lastActivity)
	return age >= p.options.ActivityMinAge && age <= p.options.ActivityWindow
}

func (p *Poller) heartbeat(now time.Time) bool {
	if p.options.HeartbeatInterval <= 0 {
		return false
	}
	return p.lastStatusRequest.IsZero() || now.Sub(p.lastStatusRequest) >= p.options.HeartbeatInterval
}

// ShouldPoll is called on every tick.
func (p *Poller) ShouldPoll(now time.Time) bool {
	if !p.StatusRequestAllowed(now) {
		return false
	}
	return p.active(now) || p.heartbeat(now)
}

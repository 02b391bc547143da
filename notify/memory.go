package notify

import (
	"context"
	"sync"

	identity "github.com/MrEthical07/goIdentity"
)

// Memory records every message in order. It is meant for tests and local
// development.
type Memory struct {
	mu     sync.Mutex
	emails []identity.EmailMessage
	sms    []identity.SMSMessage
	// Fail, when set, is returned by every enqueue.
	Fail error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) EnqueueEmail(_ context.Context, msg identity.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.emails = append(m.emails, cloneEmail(msg))
	return nil
}

func (m *Memory) EnqueueSMS(_ context.Context, msg identity.SMSMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	msg.Vars = cloneVars(msg.Vars)
	m.sms = append(m.sms, msg)
	return nil
}

// Emails returns a copy of the recorded emails.
func (m *Memory) Emails() []identity.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]identity.EmailMessage(nil), m.emails...)
}

// SMS returns a copy of the recorded text messages.
func (m *Memory) SMS() []identity.SMSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]identity.SMSMessage(nil), m.sms...)
}

// LastEmail returns the most recent email, or false when none was sent.
func (m *Memory) LastEmail() (identity.EmailMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.emails) == 0 {
		return identity.EmailMessage{}, false
	}
	return m.emails[len(m.emails)-1], true
}

// LastSMS returns the most recent text message, or false when none was sent.
func (m *Memory) LastSMS() (identity.SMSMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sms) == 0 {
		return identity.SMSMessage{}, false
	}
	return m.sms[len(m.sms)-1], true
}

func cloneEmail(msg identity.EmailMessage) identity.EmailMessage {
	msg.Vars = cloneVars(msg.Vars)
	return msg
}

func cloneVars(v map[string]string) map[string]string {
	if v == nil {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

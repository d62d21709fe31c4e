package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/mock"
)

// reconcileWorld 每個 scenario 一個 session
type reconcileWorld struct {
	session *Session
	port    *fakePort
	api     *MockMessageAPI
	clock   *fakeClock
	aliases map[string]string
	matched map[string]string
	sent    int
}

func (w *reconcileWorld) aConnectedSession() error {
	logger.SetNewNop()
	w.port = newFakePort()
	w.api = new(MockMessageAPI)
	w.clock = newFakeClock()
	w.aliases = make(map[string]string)
	w.matched = make(map[string]string)

	gate := newPersistGate()
	w.api.persist = gate.persist
	w.api.On("ListConversations", mock.Anything).Return([]domain.Conversation{}, nil).Maybe()
	w.api.On("FetchMessages", mock.Anything, mock.Anything).Return([]domain.Message{}, nil).Maybe()
	w.api.On("MarkRead", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	w.session = NewSession(w.port, w.api, nil, domain.Hooks{}, SessionConfig{UserID: selfID, Now: w.clock.Now})
	if err := w.session.Start(context.Background()); err != nil {
		return err
	}
	w.session.Drain()
	return nil
}

func (w *reconcileWorld) channelIsSelected(id string) error {
	return w.session.Select(context.Background(), domain.Select(domain.Channel(id)))
}

func (w *reconcileWorld) theConnectionIsLost() error {
	w.port.SetUp(false)
	if w.session.IsConnected() {
		return fmt.Errorf("still connected")
	}
	return nil
}

func (w *reconcileWorld) theConnectionIsRestored() error {
	joins := len(w.port.Joins())
	w.port.SetUp(true)
	deadline := time.Now().Add(time.Second)
	for len(w.port.Joins()) == joins {
		if time.Now().After(deadline) {
			return fmt.Errorf("room was not joined again after reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (w *reconcileWorld) iSendAs(body, alias string) error {
	tempID, err := w.session.Send(context.Background(), body, nil)
	if err != nil {
		return err
	}
	w.aliases[alias] = tempID
	w.sent++
	w.clock.Advance(10 * time.Millisecond)
	return nil
}

func (w *reconcileWorld) messageIsBroadcast(id, body, channel string) error {
	before := w.pendingTempIDs()
	ref := domain.Channel(channel)
	w.port.Deliver(domain.NewMessage{Ref: ref, Message: serverMsg(id, ref, selfID, body, w.clock.Now().Add(time.Second))})
	after := w.pendingTempIDs()
	for tempID := range before {
		if !after[tempID] {
			w.matched[tempID] = id
		}
	}
	return nil
}

func (w *reconcileWorld) isReplacedByMessageWithStatus(alias, id, status string) error {
	tempID, ok := w.aliases[alias]
	if !ok {
		return fmt.Errorf("unknown alias %s", alias)
	}
	if got := w.matched[tempID]; got != id {
		return fmt.Errorf("%s matched %q, want %q", alias, got, id)
	}
	for _, e := range w.session.Entries() {
		if e.ID == id {
			if string(e.Status) != status {
				return fmt.Errorf("message %s has status %s, want %s", id, e.Status, status)
			}
			return nil
		}
	}
	return fmt.Errorf("message %s not rendered", id)
}

func (w *reconcileWorld) isShownWithStatus(alias, status string) error {
	tempID := w.aliases[alias]
	for _, e := range w.session.Entries() {
		if e.TempID == tempID && e.ID == "" {
			if string(e.Status) != status {
				return fmt.Errorf("%s has status %s, want %s", alias, e.Status, status)
			}
			return nil
		}
	}
	return fmt.Errorf("%s not rendered", alias)
}

func (w *reconcileWorld) theListHasEntries(n int) error {
	entries := w.session.Entries()
	if len(entries) != n {
		return fmt.Errorf("list has %d entries, want %d", len(entries), n)
	}
	if !domain.IsSorted(entries) {
		return fmt.Errorf("list is not sorted")
	}
	return nil
}

func (w *reconcileWorld) pendingTempIDs() map[string]bool {
	out := make(map[string]bool)
	for _, e := range w.session.Entries() {
		if e.ID == "" && e.Status == domain.StatusPending {
			out[e.TempID] = true
		}
	}
	return out
}

func InitializeReconciliationScenario(sc *godog.ScenarioContext) {
	w := &reconcileWorld{}

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if w.session != nil {
			w.session.Close()
		}
		return ctx, nil
	})

	sc.Step(`^a connected session$`, w.aConnectedSession)
	sc.Step(`^channel "([^"]*)" is selected$`, w.channelIsSelected)
	sc.Step(`^the connection is lost$`, w.theConnectionIsLost)
	sc.Step(`^the connection is restored$`, w.theConnectionIsRestored)
	sc.Step(`^I send "([^"]*)" as "([^"]*)"$`, w.iSendAs)
	sc.Step(`^message "([^"]*)" with body "([^"]*)" is broadcast in channel "([^"]*)"$`, w.messageIsBroadcast)
	sc.Step(`^"([^"]*)" is replaced by message "([^"]*)" with status "([^"]*)"$`, w.isReplacedByMessageWithStatus)
	sc.Step(`^"([^"]*)" is shown with status "([^"]*)"$`, w.isShownWithStatus)
	sc.Step(`^the list has (\d+) entries$`, w.theListHasEntries)
}

func TestReconciliationFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "reconciliation",
		ScenarioInitializer: InitializeReconciliationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

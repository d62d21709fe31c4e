package app

import (
	"sort"
	"time"

	"chat_sync_service/internal/chatsync/domain"
)

// Outcome what reconciling one confirmed message did to the list
type Outcome int

const (
	// OutcomeIgnored message belongs to another conversation
	OutcomeIgnored Outcome = iota
	// OutcomeDuplicate id already rendered
	OutcomeDuplicate
	// OutcomeMatched replaced a local entry in place
	OutcomeMatched
	// OutcomeAppended rendered as a new message
	OutcomeAppended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMatched:
		return "matched"
	case OutcomeAppended:
		return "appended"
	default:
		return "ignored"
	}
}

// Reconciled result of folding a confirmed message
type Reconciled struct {
	Outcome Outcome
	// TempID local entry replaced by the message, set when Outcome is OutcomeMatched
	TempID string
}

// HydrateResult result of loading a snapshot
type HydrateResult struct {
	// Matched temp ids confirmed by snapshot messages
	Matched []string
	// Merged confirmed messages kept from the previous list of the same conversation
	Merged int
}

// ReconciliationEngine rendered list plus dedup set of the active conversation.
// List and dedup set are always swapped together.
type ReconciliationEngine struct {
	ref     domain.ConversationRef
	entries []domain.Entry
	dedup   *DeduplicationTracker
	outbox  *OptimisticSendCoordinator
	window  time.Duration
}

// NewReconciliationEngine create ReconciliationEngine
func NewReconciliationEngine(outbox *OptimisticSendCoordinator, window time.Duration) *ReconciliationEngine {
	return &ReconciliationEngine{
		dedup:  NewDeduplicationTracker(),
		outbox: outbox,
		window: window,
	}
}

// Ref conversation whose list is held
func (e *ReconciliationEngine) Ref() domain.ConversationRef {
	return e.ref
}

// Entries copy of the rendered list
func (e *ReconciliationEngine) Entries() []domain.Entry {
	out := make([]domain.Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Clear drop the list, selection is none
func (e *ReconciliationEngine) Clear() {
	e.ref = domain.ConversationRef{}
	e.entries = nil
	e.dedup.Reset(nil)
}

// Activate switch to ref with an empty list until its snapshot lands.
// Local entries of ref stay visible.
func (e *ReconciliationEngine) Activate(ref domain.ConversationRef) {
	e.ref = ref
	e.entries = e.localEntries(ref)
	e.dedup.Reset(nil)
	domain.SortEntries(e.entries)
}

// Hydrate replace list and dedup set of ref with the snapshot.
// Snapshot messages confirm pending entries the same way broadcasts do, and confirmed
// messages already rendered for the same ref but missing from the snapshot are kept.
func (e *ReconciliationEngine) Hydrate(ref domain.ConversationRef, snapshot []domain.Message) HydrateResult {
	var res HydrateResult

	seen := NewDeduplicationTracker()
	entries := make([]domain.Entry, 0, len(snapshot))

	ordered := append([]domain.Message(nil), snapshot...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return domain.Less(domain.EntryFromMessage(ordered[i]), domain.EntryFromMessage(ordered[j]))
	})
	for _, m := range ordered {
		if m.ID == "" || seen.HasSeen(m.ID) {
			continue
		}
		seen.MarkSeen(m.ID)
		// 已渲染過的訊息不再拿來比對，避免同一則訊息確認兩筆 pending
		if !(ref == e.ref && e.dedup.HasSeen(m.ID)) {
			if p, ok := e.outbox.Match(ref, m.AuthorID, m.Body, m.CreatedAt, e.window); ok {
				e.outbox.Confirm(p.TempID)
				res.Matched = append(res.Matched, p.TempID)
			}
		}
		entries = append(entries, domain.EntryFromMessage(m))
	}

	if ref == e.ref {
		for _, old := range e.entries {
			if old.Confirmed() && !seen.HasSeen(old.ID) {
				seen.MarkSeen(old.ID)
				entries = append(entries, old)
				res.Merged++
			}
		}
	}

	entries = append(entries, e.localEntries(ref)...)
	domain.SortEntries(entries)

	e.ref = ref
	e.entries = entries
	e.dedup = seen
	return res
}

// ApplyNew fold a new_message broadcast
func (e *ReconciliationEngine) ApplyNew(m domain.Message) Reconciled {
	if m.Ref != e.ref || e.ref.IsZero() {
		return Reconciled{Outcome: OutcomeIgnored}
	}
	if e.dedup.HasSeen(m.ID) {
		return Reconciled{Outcome: OutcomeDuplicate}
	}
	e.dedup.MarkSeen(m.ID)

	if p, ok := e.outbox.Match(m.Ref, m.AuthorID, m.Body, m.CreatedAt, e.window); ok {
		e.outbox.Confirm(p.TempID)
		e.replaceLocal(p.TempID, m)
		return Reconciled{Outcome: OutcomeMatched, TempID: p.TempID}
	}

	e.insert(domain.EntryFromMessage(m))
	return Reconciled{Outcome: OutcomeAppended}
}

// ConfirmSend fold the persist call's canonical response for tempID
func (e *ReconciliationEngine) ConfirmSend(tempID string, m domain.Message) Reconciled {
	if m.Ref != e.ref || e.ref.IsZero() {
		e.outbox.Confirm(tempID)
		return Reconciled{Outcome: OutcomeIgnored}
	}
	if e.dedup.HasSeen(m.ID) {
		// 廣播已先到並佔用了另一筆 pending，這筆直接移除
		if e.outbox.Confirm(tempID) {
			e.removeLocal(tempID)
		}
		return Reconciled{Outcome: OutcomeDuplicate, TempID: tempID}
	}
	e.dedup.MarkSeen(m.ID)

	if e.outbox.Confirm(tempID) {
		e.replaceLocal(tempID, m)
		return Reconciled{Outcome: OutcomeMatched, TempID: tempID}
	}
	e.insert(domain.EntryFromMessage(m))
	return Reconciled{Outcome: OutcomeAppended}
}

// ApplyUpdate patch the message with id in place
func (e *ReconciliationEngine) ApplyUpdate(ref domain.ConversationRef, id string, patch domain.MessagePatch) bool {
	i := e.find(ref, id)
	if i < 0 {
		return false
	}
	patch.Apply(&e.entries[i].Message)
	return true
}

// ApplyDelete tombstone the message with id, the slot stays
func (e *ReconciliationEngine) ApplyDelete(ref domain.ConversationRef, id string, at time.Time) bool {
	i := e.find(ref, id)
	if i < 0 {
		return false
	}
	if !e.entries[i].IsDeleted() {
		e.entries[i].Tombstone(at)
	}
	return true
}

// AddLocal render a local entry of the active conversation
func (e *ReconciliationEngine) AddLocal(p domain.PendingMessage) bool {
	if p.Ref != e.ref || e.ref.IsZero() {
		return false
	}
	e.insert(domain.EntryFromPending(&p))
	return true
}

// SetLocalStatus update the status of the rendered local entry
func (e *ReconciliationEngine) SetLocalStatus(tempID string, status domain.SendStatus) bool {
	for i := range e.entries {
		if e.entries[i].TempID == tempID && e.entries[i].ID == "" {
			e.entries[i].Status = status
			return true
		}
	}
	return false
}

// RemoveLocal drop the rendered local entry
func (e *ReconciliationEngine) RemoveLocal(tempID string) bool {
	return e.removeLocal(tempID)
}

// SeenCount ids in the dedup set
func (e *ReconciliationEngine) SeenCount() int {
	return e.dedup.Len()
}

func (e *ReconciliationEngine) localEntries(ref domain.ConversationRef) []domain.Entry {
	var out []domain.Entry
	for _, p := range e.outbox.Entries(ref) {
		p := p
		out = append(out, domain.EntryFromPending(&p))
	}
	return out
}

func (e *ReconciliationEngine) replaceLocal(tempID string, m domain.Message) {
	for i := range e.entries {
		if e.entries[i].TempID == tempID && e.entries[i].ID == "" {
			e.entries[i] = domain.EntryFromMessage(m)
			domain.SortEntries(e.entries)
			return
		}
	}
	e.insert(domain.EntryFromMessage(m))
}

func (e *ReconciliationEngine) removeLocal(tempID string) bool {
	for i := range e.entries {
		if e.entries[i].TempID == tempID && e.entries[i].ID == "" {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (e *ReconciliationEngine) insert(entry domain.Entry) {
	e.entries = append(e.entries, entry)
	domain.SortEntries(e.entries)
}

func (e *ReconciliationEngine) find(ref domain.ConversationRef, id string) int {
	if ref != e.ref || id == "" {
		return -1
	}
	for i := range e.entries {
		if e.entries[i].ID == id {
			return i
		}
	}
	return -1
}

package ref

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/internal/trace"
	"github.com/forgectl/gitcore/object"
)

// maxDerefDepth bounds how many symbolic hops a deref edit will follow
// before giving up, the same "too many levels of symbolic reference"
// guard real git applies.
const maxDerefDepth = 5

// ChangeKind selects which half of the Change union is populated.
type ChangeKind int

const (
	ChangeUpdate ChangeKind = iota
	ChangeDelete
)

// DeleteMode controls whether a delete removes just the reflog or the
// reflog and the reference file together.
type DeleteMode int

const (
	AndReference DeleteMode = iota
	Only
)

// Target is either a peeled object id or a symbolic ref name — the two
// things a reference (or an edit's previous/new value) can hold.
type Target struct {
	Symbolic bool
	Peeled   hash.ID
	Ref      Name
}

// PeeledTarget builds a Target wrapping a peeled object id.
func PeeledTarget(id hash.ID) Target { return Target{Peeled: id} }

// SymbolicTarget builds a Target wrapping a symbolic ref name.
func SymbolicTarget(name Name) Target { return Target{Symbolic: true, Ref: name} }

func (t Target) isNull() bool { return !t.Symbolic && t.Peeled.IsZero() }

func (t Target) toReference(name Name) Reference {
	if t.Symbolic {
		return NewSymbolic(name, t.Ref)
	}
	return NewPeeled(name, t.Peeled)
}

func targetFromReference(r Reference) Target {
	if r.Kind() == KindSymbolic {
		return SymbolicTarget(r.SymbolicTarget())
	}
	return PeeledTarget(r.Target())
}

func targetsEqual(t Target, r Reference) bool {
	if t.Symbolic {
		return r.Kind() == KindSymbolic && r.SymbolicTarget() == t.Ref
	}
	return r.Kind() == KindPeeled && r.Target() == t.Peeled
}

// Change is the operation an Edit performs, exactly one half populated
// according to Kind.
type Change struct {
	Kind ChangeKind

	// Update fields.
	Previous   *Target // nil or null Target: don't care
	New        Target
	LogMessage string

	// Delete fields.
	DeletePrevious *Target // nil or null Target: don't care
	Mode           DeleteMode
}

// Edit is one requested reference mutation. Deref requests that, before
// being applied, the symbolic chain starting at Name be walked to its
// peeled leaf, splitting this Edit into an edit on the leaf plus one
// auxiliary re-affirming edit per intermediate symbolic ref walked over.
type Edit struct {
	Name   Name
	Deref  bool
	Change Change
}

var (
	// ErrOutOfDate wraps a failed previous-value check on update or delete.
	ErrOutOfDate = errors.New("ref: reference is out of date")
	// ErrMustExist is returned when a delete's non-null Previous expects a
	// reference that doesn't exist.
	ErrMustExist = errors.New("ref: reference for deletion must exist")
	// ErrTooManyLinks is returned when a deref edit's symbolic chain
	// exceeds maxDerefDepth.
	ErrTooManyLinks = errors.New("ref: too many levels of symbolic reference")
	// ErrAlreadyCommitted is returned by Commit on a transaction that has
	// already committed.
	ErrAlreadyCommitted = errors.New("ref: transaction already committed")
)

// OutOfDateError carries both sides of a failed previous-value check.
type OutOfDateError struct {
	Name     Name
	Expected Target
	Actual   Reference
}

func (e *OutOfDateError) Error() string {
	return fmt.Sprintf("ref: %s expected %+v, actual %+v", e.Name, e.Expected, e.Actual)
}

func (e *OutOfDateError) Unwrap() error { return ErrOutOfDate }

// State is a Transaction's position in its Open -> Prepared -> Committed
// lifecycle.
type State int

const (
	StateOpen State = iota
	StatePrepared
	StateCommitted
)

// Signer supplies the signature stamped into reflog entries a
// transaction writes.
type Signer func() object.Signature

type resolvedEdit struct {
	edit        Edit
	lock        *lockFile
	refPath     string
	hadPrevious bool
	previous    Reference

	// reflogPrev/reflogNew are the peeled ids a reflog entry for this
	// edit should record. They are computed once, for the whole
	// splitDeref group an edit belongs to, at Prepare time while the
	// store is still untouched — every edit in a group (the leaf plus
	// its auxiliary re-affirmations) shares the same pair, since they
	// all describe the same underlying peeled transition.
	reflogPrev hash.ID
	reflogNew  hash.ID
}

// Transaction applies a batch of Edits to the reference store atomically
// with respect to lock acquisition: Prepare acquires every lock (or
// none, on failure), Commit performs the two ordered passes (updates,
// then deletes) described in 4.8 and is the only step that can leave
// partial state on disk.
type Transaction struct {
	fs               billy.Filesystem
	refsDir          string
	lockMode         LockFailMode
	signer           Signer
	logAllRefUpdates bool

	state    State
	edits    []Edit
	prepared []*resolvedEdit
}

// New constructs a transaction over edits, rooted at refsDir (the
// directory holding HEAD and refs/, conventionally ".git"). signer
// supplies reflog signatures; logAllRefUpdates mirrors
// core.logallrefupdates (HEAD is always logged regardless).
func New(fs billy.Filesystem, refsDir string, edits []Edit, lockMode LockFailMode, signer Signer, logAllRefUpdates bool) *Transaction {
	cp := make([]Edit, len(edits))
	copy(cp, edits)
	return &Transaction{fs: fs, refsDir: refsDir, edits: cp, lockMode: lockMode, signer: signer, logAllRefUpdates: logAllRefUpdates}
}

// State reports the transaction's current lifecycle position.
func (t *Transaction) State() State { return t.state }

func (t *Transaction) refPath(name Name) string {
	return t.fs.Join(t.refsDir, string(name))
}

func (t *Transaction) reflogPath(name Name) string {
	return t.fs.Join(t.refsDir, "logs", string(name))
}

// resolve reads and decodes the current value of name. A missing file
// reports (zero, false, nil); a decode failure is treated the same way,
// per 4.8 prepare step 3 ("a decode failure is treated as absent").
func (t *Transaction) resolve(name Name) (Reference, bool, error) {
	f, err := t.fs.Open(t.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Reference{}, false, nil
		}
		return Reference{}, false, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return Reference{}, false, err
	}
	ref, err := Decode(name, content)
	if err != nil {
		return Reference{}, false, nil
	}
	return ref, true, nil
}

// splitDeref performs the symbolic-chain walk and split described in
// 4.8's pre-processing step. A non-deref edit is returned unchanged. The
// auxiliary edits (one per intermediate symbolic ref) are returned
// before the leaf edit, in chain order; the leaf always comes last.
func (t *Transaction) splitDeref(e Edit) ([]Edit, error) {
	if !e.Deref {
		return []Edit{e}, nil
	}

	var chainNames []Name
	var chainTargets []Name
	cur := e.Name
	for depth := 0; ; depth++ {
		if depth > maxDerefDepth {
			return nil, fmt.Errorf("%w: %s", ErrTooManyLinks, e.Name)
		}
		ref, ok, err := t.resolve(cur)
		if err != nil {
			return nil, err
		}
		if !ok || ref.Kind() != KindSymbolic {
			break
		}
		next := ref.SymbolicTarget()
		chainNames = append(chainNames, cur)
		chainTargets = append(chainTargets, next)
		cur = next
	}

	leaf := e
	leaf.Name = cur
	leaf.Deref = false

	out := make([]Edit, 0, len(chainNames)+1)
	for i, name := range chainNames {
		out = append(out, Edit{
			Name: name,
			Change: Change{
				Kind: ChangeUpdate,
				New:  SymbolicTarget(chainTargets[i]),
			},
		})
	}
	return append(out, leaf), nil
}

// Prepare acquires locks and validates previous-value expectations for
// every edit (after deref splitting), writing new content for updates
// into each lock's staging file. It is idempotent: calling it again once
// Prepared or Committed is a no-op. A failure releases every lock
// acquired so far, restoring the prior on-disk state.
func (t *Transaction) Prepare() error {
	if t.state != StateOpen {
		return nil
	}

	var prepared []*resolvedEdit
	releaseAll := func() {
		for _, done := range prepared {
			_ = done.lock.release()
		}
	}

	for _, e := range t.edits {
		group, err := t.splitDeref(e)
		if err != nil {
			releaseAll()
			return err
		}

		groupResolved := make([]*resolvedEdit, 0, len(group))
		for _, ge := range group {
			re, err := t.lockAndResolve(ge)
			if err != nil {
				for _, done := range groupResolved {
					_ = done.lock.release()
				}
				releaseAll()
				return err
			}
			groupResolved = append(groupResolved, re)
		}

		// Every edit in the group (auxiliary re-affirmations plus the
		// leaf) describes the same underlying peeled transition, so they
		// all get the leaf's previous/new peeled ids for their reflog
		// entry. Computed now, before any lock in this transaction has
		// been committed, so the store is still in its pre-transaction
		// state.
		leaf := groupResolved[len(groupResolved)-1]
		if leaf.edit.Change.Kind == ChangeUpdate {
			prevPeeled := hash.Zero
			if leaf.hadPrevious {
				prevPeeled = t.peeledFor(targetFromReference(leaf.previous))
			}
			newPeeled := t.peeledFor(leaf.edit.Change.New)
			for _, re := range groupResolved {
				re.reflogPrev = prevPeeled
				re.reflogNew = newPeeled
			}
		}

		prepared = append(prepared, groupResolved...)
	}

	t.prepared = prepared
	t.state = StatePrepared
	return nil
}

func (t *Transaction) lockAndResolve(e Edit) (*resolvedEdit, error) {
	refPath := t.refPath(e.Name)

	existing, had, err := t.resolve(e.Name)
	if err != nil {
		return nil, err
	}

	lk, err := acquireLock(t.fs, refPath, t.lockMode)
	if err != nil {
		return nil, err
	}

	switch e.Change.Kind {
	case ChangeDelete:
		if err := checkDeletePrevious(e, had, existing); err != nil {
			_ = lk.release()
			return nil, err
		}
	default:
		if err := checkUpdatePrevious(e, had, existing); err != nil {
			_ = lk.release()
			return nil, err
		}
		content := e.Change.New.toReference(e.Name).Encode()
		if err := lk.writeAndClose(content); err != nil {
			_ = lk.release()
			return nil, err
		}
	}

	return &resolvedEdit{edit: e, lock: lk, refPath: refPath, hadPrevious: had, previous: existing}, nil
}

func checkUpdatePrevious(e Edit, had bool, existing Reference) error {
	prev := e.Change.Previous
	if prev == nil || prev.isNull() {
		return nil
	}
	if !had {
		return &OutOfDateError{Name: e.Name, Expected: *prev, Actual: Reference{}}
	}
	if !targetsEqual(*prev, existing) {
		return &OutOfDateError{Name: e.Name, Expected: *prev, Actual: existing}
	}
	return nil
}

func checkDeletePrevious(e Edit, had bool, existing Reference) error {
	prev := e.Change.DeletePrevious
	if prev == nil || prev.isNull() {
		return nil
	}
	if !had {
		return fmt.Errorf("%w: %s", ErrMustExist, e.Name)
	}
	if !targetsEqual(*prev, existing) {
		return &OutOfDateError{Name: e.Name, Expected: *prev, Actual: existing}
	}
	return nil
}

// Commit performs the two ordered passes over the prepared edits:
// updates (reflog then atomic rename), then deletes (reflog removal,
// then reference removal if requested). Commit auto-prepares an Open
// transaction. A failure partway through leaves a partial state on disk
// by design ("best-effort forward"); the caller can inspect the returned
// edits (reflecting applied state up to the failure) to tell what
// landed.
func (t *Transaction) Commit() ([]Edit, error) {
	if t.state == StateOpen {
		if err := t.Prepare(); err != nil {
			return nil, err
		}
	}
	if t.state == StateCommitted {
		return nil, ErrAlreadyCommitted
	}

	applied := make([]Edit, 0, len(t.prepared))

	for _, re := range t.prepared {
		if re.edit.Change.Kind != ChangeUpdate {
			continue
		}
		if err := t.commitUpdate(re); err != nil {
			return applied, err
		}
		applied = append(applied, re.edit)
	}
	for _, re := range t.prepared {
		if re.edit.Change.Kind != ChangeDelete {
			continue
		}
		if err := t.commitDelete(re); err != nil {
			return applied, err
		}
		applied = append(applied, re.edit)
	}

	t.state = StateCommitted
	return applied, nil
}

func (t *Transaction) commitUpdate(re *resolvedEdit) error {
	if t.shouldLog(re.edit.Name) {
		line := LogLine{
			Previous:  re.reflogPrev,
			New:       re.reflogNew,
			Signature: t.signer(),
			Message:   re.edit.Change.LogMessage,
		}
		if err := t.appendReflog(re.edit.Name, line); err != nil {
			return fmt.Errorf("ref: writing reflog for %s: %w", re.edit.Name, err)
		}
	}

	if err := re.lock.commit(re.refPath); err != nil {
		return fmt.Errorf("ref: committing %s: %w", re.edit.Name, err)
	}
	trace.RefLog.Printf("ref: updated %s", re.edit.Name)
	return nil
}

func (t *Transaction) commitDelete(re *resolvedEdit) error {
	if err := t.fs.Remove(t.reflogPath(re.edit.Name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ref: deleting reflog for %s: %w", re.edit.Name, err)
	}
	if re.edit.Change.Mode == AndReference {
		if err := t.fs.Remove(re.refPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("ref: deleting %s: %w", re.edit.Name, err)
		}
	}
	trace.RefLog.Printf("ref: deleted %s (mode=%v)", re.edit.Name, re.edit.Change.Mode)
	return re.lock.release()
}

// shouldLog reports whether an update to name gets a reflog entry: HEAD
// always does; any other ref does when core.logallrefupdates is set, or
// when it already has a reflog (matching real git's "once logged, keep
// logging" behavior).
func (t *Transaction) shouldLog(name Name) bool {
	if name == "HEAD" || t.logAllRefUpdates {
		return true
	}
	_, err := t.fs.Stat(t.reflogPath(name))
	return err == nil
}

// peeledFor resolves target to the object id a reflog entry should
// record: itself if already peeled, or the peeled id at the end of its
// symbolic chain (hash.Zero if the chain is dangling or too deep).
func (t *Transaction) peeledFor(target Target) hash.ID {
	cur := target
	seen := map[Name]bool{}
	for depth := 0; depth <= maxDerefDepth; depth++ {
		if !cur.Symbolic {
			return cur.Peeled
		}
		if seen[cur.Ref] {
			return hash.Zero
		}
		seen[cur.Ref] = true
		ref, ok, err := t.resolve(cur.Ref)
		if err != nil || !ok {
			return hash.Zero
		}
		cur = targetFromReference(ref)
	}
	return hash.Zero
}

func (t *Transaction) appendReflog(name Name, line LogLine) error {
	p := t.reflogPath(name)
	if dir := path.Dir(p); dir != "." {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := t.fs.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(FormatLine(line)))
	return err
}
